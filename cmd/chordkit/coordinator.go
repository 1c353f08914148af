package main

import (
	"fmt"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit/client"
	"github.com/rfratto/chordkit/coordinator"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func cmdCoordinator(g *globalFlags) *cobra.Command {
	var (
		listenAddr string
		httpAddr   string
		cfg        coordinator.Config
	)

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Runs the ring coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := g.logger()
			if err != nil {
				return err
			}
			if cfg.Space, err = g.space(); err != nil {
				return err
			}

			pool, err := newPool(log.With(l, "component", "clientpool"))
			if err != nil {
				return err
			}
			defer pool.Close()

			cfg.Updater = client.NewPeers(pool)
			cfg.Log = log.With(l, "component", "coordinator")

			c, err := coordinator.New(cfg)
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			srv, hs := newGRPCServer()
			c.Register(srv)
			serveGRPC(l, srv, lis)
			defer srv.GracefulStop()
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

			level.Info(l).Log("msg", "coordinator started", "addr", lis.Addr(), "bits", cfg.Space.Bits())

			reg := prometheus.NewRegistry()
			reg.MustRegister(c.Metrics(), pool.Metrics())
			stop, err := serveHTTP(l, httpAddr, mux.NewRouter(), reg)
			if err != nil {
				return err
			}
			defer stop()

			waitForSignal(l)
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen-addr", "0.0.0.0:49999", "Address to serve the coordinator API on")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Address to serve metrics on. Disabled when empty")
	cmd.Flags().IntVar(&cfg.FingerSize, "fingers", 5, "Number of entries in each finger table")
	cmd.Flags().IntVar(&cfg.PortBase, "port-base", 50000, "First port assigned to peers registering without one")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", 8, "Identifiers tried per registration before giving up")
	cmd.Flags().DurationVar(&cfg.UpdateTimeout, "update-timeout", 0, "Timeout for pushing a finger table to a peer (default 5s)")
	cmd.Flags().DurationVar(&cfg.JoinTimeout, "join-timeout", 0, "Time a peer has to complete its join before its registration is dropped (default 30s)")

	return cmd
}
