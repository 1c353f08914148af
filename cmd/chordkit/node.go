package main

import (
	"context"
	"fmt"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit/advertise"
	"github.com/rfratto/chordkit/api"
	"github.com/rfratto/chordkit/client"
	"github.com/rfratto/chordkit/dictionary"
	"github.com/rfratto/chordkit/node"
	"github.com/rfratto/chordkit/peer"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func cmdNode(g *globalFlags) *cobra.Command {
	var (
		coordAddr  string
		listenHost string
		interfaces []string
		httpAddr   string
		dictPath   string
		cfg        node.Config
	)

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Runs a peer and joins it to the ring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := g.logger()
			if err != nil {
				return err
			}
			if cfg.Space, err = g.space(); err != nil {
				return err
			}
			if cfg.AdvertiseAddr, err = advertise.Address(cfg.AdvertiseAddr, interfaces); err != nil {
				return fmt.Errorf("failed to find advertise address: %w", err)
			}

			pool, err := newPool(log.With(l, "component", "clientpool"))
			if err != nil {
				return err
			}
			defer pool.Close()

			srv, hs := newGRPCServer()
			defer srv.GracefulStop()

			cfg.Coordinator = client.NewCoordinator(pool, coordAddr)
			cfg.Transport = client.NewPeers(pool)
			cfg.Log = l
			cfg.OnAssigned = func(self peer.Info) error {
				_, port, err := net.SplitHostPort(self.Addr)
				if err != nil {
					return err
				}
				lis, err := net.Listen("tcp", net.JoinHostPort(listenHost, port))
				if err != nil {
					return fmt.Errorf("failed to listen: %w", err)
				}
				serveGRPC(l, srv, lis)
				return nil
			}

			n, err := node.New(cfg)
			if err != nil {
				return err
			}
			n.Register(srv)

			ctx := commandContext(cmd)
			if err := n.Join(ctx); err != nil {
				return fmt.Errorf("failed to join: %w", err)
			}
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			level.Info(l).Log("msg", "joined ring", "self", n.Info(), "predecessor", n.Predecessor())

			reg := prometheus.NewRegistry()
			reg.MustRegister(n.Metrics(), pool.Metrics())

			r := mux.NewRouter()
			api.New(n, r)
			stop, err := serveHTTP(l, httpAddr, r, reg)
			if err != nil {
				return err
			}
			defer stop()

			if dictPath != "" {
				loadDictionary(ctx, l, n, dictPath)
			}

			waitForSignal(l)
			return nil
		},
	}

	cmd.Flags().StringVar(&coordAddr, "coordinator", "127.0.0.1:49999", "Address of the coordinator")
	cmd.Flags().StringVar(&cfg.AdvertiseAddr, "advertise-addr", "", "Address announced to the ring. A bare host lets the coordinator pick the port")
	cmd.Flags().StringSliceVar(&interfaces, "advertise-interfaces", advertise.DefaultInterfaces, "Interfaces searched for an address when --advertise-addr has no host")
	cmd.Flags().StringVar(&listenHost, "listen-host", "0.0.0.0", "Host to serve the peer API on. The port comes from the advertised address")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Address to serve the HTTP API and metrics on. Disabled when empty")
	cmd.Flags().DurationVar(&cfg.HopTimeout, "hop-timeout", 0, "Timeout for each request to another peer (default 3s)")
	cmd.Flags().IntVar(&cfg.MaxHops, "max-hops", 0, "Maximum forwards for a resolution (default --bits)")
	cmd.Flags().StringVar(&dictPath, "dictionary", "", "Dictionary file to load once joined")

	return cmd
}

func loadDictionary(ctx context.Context, l log.Logger, a dictionary.Adder, path string) {
	entries, warnings, err := dictionary.ParseFile(path)
	if err != nil {
		level.Error(l).Log("msg", "failed to read dictionary", "path", path, "err", err)
		return
	}
	if warnings != nil {
		level.Warn(l).Log("msg", "skipped malformed dictionary lines", "path", path, "err", warnings)
	}

	added, err := dictionary.Load(ctx, l, a, entries)
	if err != nil {
		level.Warn(l).Log("msg", "some dictionary entries were not stored", "err", err)
	}
	level.Info(l).Log("msg", "loaded dictionary", "path", path, "added", added, "total", len(entries))
}
