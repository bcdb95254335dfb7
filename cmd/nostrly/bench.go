package main

import (
	"fmt"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	vegeta "github.com/tsenart/vegeta/lib"
)

type benchConfig struct {
	Host     string
	Roots    []string
	Opener   string
	Endpoint string
	RPS      int
	Duration time.Duration
}

func (c *cli) benchCmd() *cobra.Command {
	cfg := benchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load test a running daemon's thread endpoints",
		Long: `Load test a running nostrly daemon. The "get" endpoint reads
GET /v1/threads/{root}; "ensure" drives POST /v1/threads/{root}/ensure, which
exercises the request deduplicator under concurrent identical calls.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := cfg.targets()
			if err != nil {
				return err
			}
			metrics := runBench(cfg, targets)
			c.printBench(cfg, metrics)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Host, "host", "http://127.0.0.1:7447", "nostrly daemon base URL")
	f.StringSliceVar(&cfg.Roots, "root", nil, "Thread root id to request (repeatable)")
	f.StringVar(&cfg.Opener, "opener", "", "Opener id passed to ensure")
	f.StringVar(&cfg.Endpoint, "endpoint", "get", "Endpoint to hit (get, ensure)")
	f.IntVar(&cfg.RPS, "rps", 100, "Requests per second")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Benchmark duration")
	return cmd
}

func (b benchConfig) targets() ([]vegeta.Target, error) {
	if len(b.Roots) == 0 {
		return nil, fmt.Errorf("at least one --root is required")
	}
	if b.RPS <= 0 || b.Duration <= 0 {
		return nil, fmt.Errorf("--rps and --duration must be positive")
	}
	host := strings.TrimRight(b.Host, "/")
	out := make([]vegeta.Target, 0, len(b.Roots))
	for _, root := range b.Roots {
		u := host + "/v1/threads/" + url.PathEscape(root)
		switch b.Endpoint {
		case "get":
			out = append(out, vegeta.Target{Method: "GET", URL: u})
		case "ensure":
			u += "/ensure"
			if b.Opener != "" {
				u += "?opener=" + url.QueryEscape(b.Opener)
			}
			out = append(out, vegeta.Target{Method: "POST", URL: u})
		default:
			return nil, fmt.Errorf("unknown endpoint %q (want get or ensure)", b.Endpoint)
		}
	}
	return out, nil
}

func runBench(cfg benchConfig, targets []vegeta.Target) *vegeta.Metrics {
	targeter := vegeta.NewStaticTargeter(targets...)
	rate := vegeta.Rate{Freq: cfg.RPS, Per: time.Second}
	attacker := vegeta.NewAttacker(vegeta.Workers(uint64(runtime.NumCPU())))

	results := &vegeta.Metrics{}
	for res := range attacker.Attack(targeter, rate, cfg.Duration, "nostrly_"+cfg.Endpoint) {
		results.Add(res)
	}
	results.Close()
	return results
}

func (c *cli) printBench(cfg benchConfig, m *vegeta.Metrics) {
	fmt.Fprintf(c.out, "Benchmark %s against %s (%d roots)\n", cfg.Endpoint, cfg.Host, len(cfg.Roots))
	fmt.Fprintln(c.out, "=====================================")
	fmt.Fprintf(c.out, "  requests:   %s\n", humanize.Comma(int64(m.Requests)))
	fmt.Fprintf(c.out, "  throughput: %.1f req/s\n", m.Throughput)
	fmt.Fprintf(c.out, "  success:    %.2f%%\n", m.Success*100)
	fmt.Fprintf(c.out, "  latency:    mean %s, p50 %s, p95 %s, p99 %s, max %s\n",
		m.Latencies.Mean, m.Latencies.P50, m.Latencies.P95, m.Latencies.P99, m.Latencies.Max)
	fmt.Fprintf(c.out, "  bytes in:   %s\n", humanize.Bytes(m.BytesIn.Total))

	codes := make([]string, 0, len(m.StatusCodes))
	for code := range m.StatusCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(c.out, "  status %s: %s\n", code, humanize.Comma(int64(m.StatusCodes[code])))
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(c.out, "  errors:     %s\n", strings.Join(m.Errors, "; "))
	}
}
