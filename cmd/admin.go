package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edgelambda/dispatcher/internal/adminserver"
)

var adminTarget string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Query or mutate a running dispatcher's forwarding table",
}

var adminDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the forwarding table",
	Run: func(cmd *cobra.Command, args []string) {
		out, err := adminClient().Dump(context.Background())
		if err != nil {
			fatalAdmin(err)
		}
		fmt.Print(out)
	},
}

var adminFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove every entry from the forwarding table",
	Run: func(cmd *cobra.Command, args []string) {
		if err := adminClient().Flush(context.Background()); err != nil {
			fatalAdmin(err)
		}
	},
}

var adminNumTablesCmd = &cobra.Command{
	Use:   "num-tables",
	Short: "Print the number of forwarding tables the server manages",
	Run: func(cmd *cobra.Command, args []string) {
		n, err := adminClient().NumTables(context.Background())
		if err != nil {
			fatalAdmin(err)
		}
		fmt.Println(n)
	},
}

var (
	changeLambda string
	changeDest   string
	changeWeight float64
	changeFinal  bool
)

var adminChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Insert or update a (lambda, destination) forwarding entry",
	Run: func(cmd *cobra.Command, args []string) {
		err := adminClient().Change(context.Background(), changeLambda, changeDest, changeWeight, changeFinal)
		if err != nil {
			fatalAdmin(err)
		}
	},
}

var (
	removeLambda string
	removeDest   string
)

var adminRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a (lambda, destination) forwarding entry",
	Run: func(cmd *cobra.Command, args []string) {
		if err := adminClient().Remove(context.Background(), removeLambda, removeDest); err != nil {
			fatalAdmin(err)
		}
	},
}

func adminClient() *adminserver.Client {
	return adminserver.NewClient(adminTarget)
}

func fatalAdmin(err error) {
	logrus.Fatal(err)
}

func init() {
	adminCmd.PersistentFlags().StringVar(&adminTarget, "target", "http://localhost:8081", "admin endpoint URL")

	adminChangeCmd.Flags().StringVar(&changeLambda, "lambda", "", "lambda name")
	adminChangeCmd.Flags().StringVar(&changeDest, "destination", "", "destination identifier")
	adminChangeCmd.Flags().Float64Var(&changeWeight, "weight", 1.0, "destination weight")
	adminChangeCmd.Flags().BoolVar(&changeFinal, "final", true, "mark the destination final")

	adminRemoveCmd.Flags().StringVar(&removeLambda, "lambda", "", "lambda name")
	adminRemoveCmd.Flags().StringVar(&removeDest, "destination", "", "destination identifier")

	adminCmd.AddCommand(adminDumpCmd, adminFlushCmd, adminNumTablesCmd, adminChangeCmd, adminRemoveCmd)
	rootCmd.AddCommand(adminCmd)
}
