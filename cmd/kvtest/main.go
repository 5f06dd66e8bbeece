// Command kvtest drives the sharded kvstore scenarios outside of `go
// test`, for ad-hoc runs against a chosen shard count and reliability
// setting. Flag/command shape follows the cobra pattern the corpus uses
// for its own CLI entrypoints (spf13/cobra Command + Run closure).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tamu-distsys-cloud/kvstore/internal/harness"
	"github.com/tamu-distsys-cloud/kvstore/internal/kvmodel"
	"github.com/tamu-distsys-cloud/kvstore/internal/logx"
	"github.com/tamu-distsys-cloud/kvstore/internal/metrics"
	"github.com/tamu-distsys-cloud/kvstore/internal/porcupine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		nShards      int
		unreliable   bool
		iterations   int
		metricsAddr  string
		checkTimeout float64
		verboseLogs  bool
	)

	cmd := &cobra.Command{
		Use:   "kvtest",
		Short: "Run append/get workloads against an in-memory sharded kvstore and check linearizability",
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.SetWriter(zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger())
			logx.SetDebug(verboseLogs)
			log := logx.Named("kvtest")

			cfg := harness.MakeShardConfig(nShards, 1, unreliable)
			defer cfg.Cleanup()

			if metricsAddr != "" {
				go func() {
					if err := metrics.Serve(metricsAddr, cfg.Network()); err != nil {
						log.Error().Err(err).Msg("metrics server exited")
					}
				}()
				log.Info().Str("addr", metricsAddr).Msg("serving /metrics")
			}

			ck := cfg.MakeClient()
			cfg.Begin("kvtest workload")

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("%d", i%nShards)
				prev := cfg.Append(ck, key, fmt.Sprintf("x %d y", i), 0)
				_ = cfg.Get(ck, key, 0)
				log.Debug().Int("iter", i).Str("key", key).Str("prev", prev).Msg("workload step")
			}

			elapsed, rpcs, ops := cfg.End()
			log.Info().Dur("elapsed", elapsed).Int64("rpcs", rpcs).Int64("ops", ops).Msg("workload complete")

			result := porcupine.CheckOperationsTimeout(kvmodel.Model(), cfg.Log().Read(), checkTimeout)
			log.Info().Str("result", string(result)).Msg("linearizability check")
			if result == porcupine.Illegal {
				return fmt.Errorf("history is not linearizable")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&nShards, "shards", 3, "number of shards in the cluster")
	cmd.Flags().BoolVar(&unreliable, "unreliable", false, "inject RPC drops, delays and reordering")
	cmd.Flags().IntVar(&iterations, "iterations", 100, "number of append/get rounds to run")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().Float64Var(&checkTimeout, "check-timeout", 5, "linearizability check timeout in seconds")
	cmd.Flags().BoolVar(&verboseLogs, "verbose", false, "enable debug-level logging")

	return cmd
}
