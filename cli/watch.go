package cli

import (
	"github.com/emmanuelist/wallet-wave/feed"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/emmanuelist/wallet-wave/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var watchAddr string

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serve live claim state over websocket, with /state, /claim and /metrics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		o := s.orchestrator()
		defer o.Close()

		recorder := metrics.New(prometheus.Labels{
			"network": s.cfg.Network.Name,
			"faucet":  s.cfg.FaucetAddress().Hex(),
		})
		registry := prometheus.NewRegistry()
		registry.MustRegister(recorder, collectors.NewGoCollector())
		defer o.Subscribe(recorder.Observe)()

		if err := o.Connect(ctx); err != nil {
			// the feed reports the stale state; keep serving
			logger.Warn("initial faucet read failed", "err", err)
		}

		if s.cfg.Refill != nil {
			r, err := newRefiller(s)
			if err != nil {
				fatal(err)
			}
			if err := r.Start(); err != nil {
				fatal(err)
			}
			defer r.Stop()
		}

		addr := watchAddr
		if addr == "" {
			addr = s.cfg.Global.ListenAddr
		}
		if addr == "" {
			addr = ":8080"
		}
		server := feed.New(o, feed.WithGatherer(registry))
		if err := server.ListenAndServe(ctx, addr); err != nil {
			fatal(err)
		}
	},
}

func init() {
	WatchCmd.Flags().StringVar(&watchAddr, "listen", "", "listen address (defaults to global.listenAddr or :8080)")
}
