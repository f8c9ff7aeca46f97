package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edgelambda/dispatcher/dispatch"
	"github.com/edgelambda/dispatcher/internal/adminserver"
)

var (
	listenAddr      string
	adminAddr       string
	routerConf      string
	ptimeestConf    string
	optimizerConf   string
	bootstrapFile   string
	fakeLambdas     int
	fakeDests       int
	numWorkers      int
	failureThresh   int
	logLevel        string
	shutdownTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dispatcher: a forwarding table, a local optimizer, and an HTTP front door",
	Run:   runDispatcher,
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address the dispatch endpoint listens on")
	runCmd.Flags().StringVar(&adminAddr, "admin-listen", ":8081", "address the admin endpoint listens on")
	runCmd.Flags().StringVar(&routerConf, "router-conf", "type=random-proportional", "router configuration string")
	runCmd.Flags().StringVar(&ptimeestConf, "ptimeest-conf", "", "processing-time estimator configuration string (empty disables it)")
	runCmd.Flags().StringVar(&optimizerConf, "optimizer-conf", "type=async,alpha=0.3", "local optimizer configuration string")
	runCmd.Flags().StringVar(&bootstrapFile, "bootstrap", "", "YAML file seeding the forwarding table")
	runCmd.Flags().IntVar(&fakeLambdas, "fake-lambdas", 0, "number of synthetic lambdas to seed (for local testing)")
	runCmd.Flags().IntVar(&fakeDests, "fake-destinations", 0, "number of synthetic destinations per fake lambda")
	runCmd.Flags().IntVar(&numWorkers, "workers", 8, "size of the dispatcher's worker pool")
	runCmd.Flags().IntVar(&failureThresh, "failure-threshold", 0, "consecutive transport failures before a destination is evicted (0 disables eviction)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")

	rootCmd.AddCommand(runCmd)
}

func runDispatcher(cmd *cobra.Command, args []string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	rc, err := dispatch.ParseRouterConfig(routerConf)
	if err != nil {
		logrus.Fatalf("router-conf: %v", err)
	}
	table, err := dispatch.NewForwardingTable(rc.Policy, time.Now().UnixNano())
	if err != nil {
		logrus.Fatalf("creating forwarding table: %v", err)
	}

	oc, err := dispatch.ParseLocalOptimizerConfig(optimizerConf)
	if err != nil {
		logrus.Fatalf("optimizer-conf: %v", err)
	}
	optimizer, err := dispatch.NewLocalOptimizer(table, oc.Alpha)
	if err != nil {
		logrus.Fatalf("creating local optimizer: %v", err)
	}

	var estimator *dispatch.PtimeEstimatorRtt
	if ptimeestConf != "" {
		pc, err := dispatch.ParsePtimeEstimatorConfig(ptimeestConf)
		if err != nil {
			logrus.Fatalf("ptimeest-conf: %v", err)
		}
		estimator = dispatch.NewPtimeEstimatorRtt(table, pc.WindowSize, pc.StalePeriod)
	}

	if bootstrapFile != "" {
		b, err := dispatch.LoadBootstrap(bootstrapFile)
		if err != nil {
			logrus.Fatalf("loading bootstrap file: %v", err)
		}
		if err := b.Apply(table); err != nil {
			logrus.Fatalf("applying bootstrap file: %v", err)
		}
	}
	if fakeLambdas > 0 {
		if err := dispatch.FakeFill(table, fakeLambdas, fakeDests); err != nil {
			logrus.Fatalf("fake-filling forwarding table: %v", err)
		}
	}

	var failures *dispatch.FailureTracker
	if failureThresh > 0 {
		failures = dispatch.NewFailureTracker(failureThresh)
	}

	disp := dispatch.NewDispatcher(table, optimizer, estimator, dispatch.NewHTTPTransport(nil), numWorkers)
	disp.Failures = failures

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	disp.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/dispatch", dispatchHandler(disp))
	dispatchServer := &http.Server{Addr: listenAddr, Handler: mux}

	admin := &http.Server{Addr: adminAddr, Handler: adminserver.New(table)}

	go func() {
		logrus.Infof("dispatch endpoint listening on %s", listenAddr)
		if err := dispatchServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("dispatch endpoint stopped: %v", err)
		}
	}()
	go func() {
		logrus.Infof("admin endpoint listening on %s", adminAddr)
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("admin endpoint stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logrus.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	_ = dispatchServer.Shutdown(shutdownCtx)
	_ = admin.Shutdown(shutdownCtx)
	if err := disp.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("dispatcher shutdown: %v", err)
	}
}

func dispatchHandler(disp *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := disp.Process(r.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if dispatch.IsUnreachable(err) {
				status = http.StatusBadGateway
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(dispatch.Response{RetCode: err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
