// Command throttlectl loads a rule file and drives a MultiThrottler from the
// command line: issue cost vectors against it, print admission results, and
// inspect bucket status — a small interactive harness, not a server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ratethrottle/pkg/logx"
	"ratethrottle/pkg/metrics"
	"ratethrottle/pkg/throttle"
	"ratethrottle/pkg/throttlecfg"
)

func main() {
	configPath := flag.String("config", "", "path to a throttle rule YAML file (required)")
	promAddr := flag.String("metrics-addr", "", "if set, expose Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	log := logx.NewLogger("throttlectl")

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "throttlectl: -config is required")
		os.Exit(1)
	}

	cfg, err := throttlecfg.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "throttlectl: %v\n", err)
		os.Exit(1)
	}

	m, err := throttle.NewMultiThrottler(cfg.ThrottleRules(), cfg.ThrottleConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "throttlectl: %v\n", err)
		os.Exit(1)
	}

	if *promAddr != "" {
		rec := metrics.NewPrometheusRecorder()
		m.SetRecorder(rec)
		go serveMetrics(*promAddr, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Printf("\nreceived signal %s, shutting down\n", sig)
		cancel()
	}()

	runREPL(ctx, m, log)
}

// runREPL reads lines of the form "throttle rule=cost,rule=cost" or
// "status" from stdin until ctx is cancelled or stdin closes.
func runREPL(ctx context.Context, m *throttle.MultiThrottler, log *logx.Logger) {
	fmt.Println("throttlectl ready. commands: throttle <rule=cost,...>, status, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "status":
			printStatus(m)
		case "throttle":
			if len(fields) < 2 {
				fmt.Println("usage: throttle rule=cost[,rule=cost...]")
				continue
			}
			handleThrottle(ctx, m, log, fields[1])
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func handleThrottle(ctx context.Context, m *throttle.MultiThrottler, log *logx.Logger, spec string) {
	cost, err := parseCostVector(spec)
	if err != nil {
		fmt.Println(err)
		return
	}

	start := time.Now()
	completion, err := m.Throttle(cost)
	if err != nil {
		fmt.Printf("rejected: %v\n", err)
		return
	}
	if err := completion.Wait(ctx); err != nil {
		fmt.Printf("cancelled after %s: %v\n", time.Since(start), err)
		return
	}
	log.Debug("admitted %v after %s", cost, time.Since(start))
	fmt.Printf("admitted after %s\n", time.Since(start))
}

func parseCostVector(spec string) (throttle.CostVector, error) {
	cost := make(throttle.CostVector)
	for _, pair := range strings.Split(spec, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed cost entry %q, want rule=cost", pair)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed cost value in %q: %w", pair, err)
		}
		cost[kv[0]] = v
	}
	return cost, nil
}

func serveMetrics(addr string, log *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving prometheus metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // demo CLI, not a hardened server
		log.Error("metrics server stopped: %v", err)
	}
}

func printStatus(m *throttle.MultiThrottler) {
	for id, s := range m.Status() {
		fmt.Printf("%-20s tokens=%.2f capacity=%.2f utilization=%.2f%% observed=%s\n",
			id, s.Tokens, s.Capacity, s.Utilization*100, s.ObservedAt.Format(time.RFC3339))
	}
	fmt.Printf("queue length: %d\n", m.QueueLength())
}
