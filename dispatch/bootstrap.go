package dispatch

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BootstrapDestination describes one destination within a bootstrap
// lambda entry.
type BootstrapDestination struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
	Final  bool    `yaml:"final"`
}

// Bootstrap is the YAML shape of an optional forwarding-table seed file
// (SPEC_FULL.md, modeled on sim/bundle.go's LoadPolicyBundle), keyed by
// lambda name.
type Bootstrap map[string][]BootstrapDestination

// LoadBootstrap reads and strictly parses a YAML bootstrap file,
// rejecting unrecognized keys the way LoadPolicyBundle does.
func LoadBootstrap(path string) (Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bootstrap file: %w", err)
	}
	var b Bootstrap
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("parsing bootstrap file: %w", err)
	}
	return b, nil
}

// Apply seeds table with every (lambda, destination) described by b.
func (b Bootstrap) Apply(table *ForwardingTable) error {
	for lambda, dests := range b {
		for _, d := range dests {
			if err := table.Change(lambda, d.ID, d.Weight, d.Final); err != nil {
				return fmt.Errorf("bootstrap %s -> %s: %w", lambda, d.ID, err)
			}
		}
	}
	return nil
}

// FakeFill seeds table with numLambdas lambdas, each fanning out to
// numDestinations destinations with unit weight, for local testing and
// the CLI's --fake-lambdas/--fake-destinations flags. Mirrors edgedispatchermain.cpp's fakeFill
// helper in the original source, kept out of production config loading.
func FakeFill(table *ForwardingTable, numLambdas, numDestinations int) error {
	for l := 0; l < numLambdas; l++ {
		lambda := fmt.Sprintf("lambda%d", l)
		for d := 0; d < numDestinations; d++ {
			dest := fmt.Sprintf("dest%d:%d", d, 10000+d)
			if err := table.Change(lambda, dest, 1.0, true); err != nil {
				return err
			}
		}
	}
	return nil
}
