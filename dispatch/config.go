package dispatch

import (
	"strconv"
	"strings"
	"time"
)

// parseKV parses a comma-separated key=value configuration string (§6),
// the same shape the teacher parses scorer configs from in
// sim/routing_scorers.go's ParseScorerConfigs. Returns
// ErrInvalidConfiguration for malformed input.
func parseKV(s string) (map[string]string, error) {
	out := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, invalidConfigf("malformed option %q (expected key=value)", strings.TrimSpace(part))
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

// RouterConfig is the parsed form of the router configuration string
// (§6): "type=least-impedance" and similar.
type RouterConfig struct {
	Policy string
}

// ParseRouterConfig parses a router configuration string. Empty string
// defaults to random-proportional.
func ParseRouterConfig(s string) (RouterConfig, error) {
	kv, err := parseKV(s)
	if err != nil {
		return RouterConfig{}, err
	}
	policy := kv["type"]
	if !IsValidPolicy(policy) {
		return RouterConfig{}, invalidConfigf("unknown router type %q", policy)
	}
	return RouterConfig{Policy: policy}, nil
}

// PtimeEstimatorConfig is the parsed form of the processing-time
// estimator configuration string (§6).
type PtimeEstimatorConfig struct {
	Type        string
	WindowSize  int
	StalePeriod time.Duration
}

// ParsePtimeEstimatorConfig parses a processing-time estimator
// configuration string such as "type=rtt,window-size=50,stale-period=10".
// Defaults: window-size=50, stale-period=10s. "type" must be "rtt" (the
// only supported estimator type, §6).
func ParsePtimeEstimatorConfig(s string) (PtimeEstimatorConfig, error) {
	kv, err := parseKV(s)
	if err != nil {
		return PtimeEstimatorConfig{}, err
	}
	cfg := PtimeEstimatorConfig{Type: "rtt", WindowSize: 50, StalePeriod: 10 * time.Second}
	if t, ok := kv["type"]; ok {
		if t != "rtt" {
			return PtimeEstimatorConfig{}, invalidConfigf("unsupported processing-time estimator type %q", t)
		}
		cfg.Type = t
	}
	if v, ok := kv["window-size"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return PtimeEstimatorConfig{}, invalidConfigf("window-size must be a positive integer, got %q", v)
		}
		cfg.WindowSize = n
	}
	if v, ok := kv["stale-period"]; ok {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return PtimeEstimatorConfig{}, invalidConfigf("stale-period must be a positive number of seconds, got %q", v)
		}
		cfg.StalePeriod = time.Duration(secs * float64(time.Second))
	}
	return cfg, nil
}

// LocalOptimizerConfig is the parsed form of the local-optimizer
// configuration string (§6): "type=async,alpha=<float in [0,1]>".
type LocalOptimizerConfig struct {
	Type  string
	Alpha float64
}

// ParseLocalOptimizerConfig parses a local-optimizer configuration
// string. "type" must be "async" (the only supported variant).
func ParseLocalOptimizerConfig(s string) (LocalOptimizerConfig, error) {
	kv, err := parseKV(s)
	if err != nil {
		return LocalOptimizerConfig{}, err
	}
	typ, ok := kv["type"]
	if !ok {
		typ = "async"
	}
	if typ != "async" {
		return LocalOptimizerConfig{}, invalidConfigf("unsupported local optimizer type %q", typ)
	}
	alphaStr, ok := kv["alpha"]
	if !ok {
		return LocalOptimizerConfig{}, invalidConfigf("local optimizer config missing required \"alpha\"")
	}
	alpha, err := strconv.ParseFloat(alphaStr, 64)
	if err != nil || alpha < 0 || alpha > 1 {
		return LocalOptimizerConfig{}, invalidConfigf("alpha must be in [0,1], got %q", alphaStr)
	}
	return LocalOptimizerConfig{Type: typ, Alpha: alpha}, nil
}
