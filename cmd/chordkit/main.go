// Command chordkit runs a chordkit coordinator or peer, and provides client
// commands to store and look up words in a running ring.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/clientpool"
	"github.com/rfratto/chordkit/ring"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/grpclog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// globalFlags are shared by every command.
type globalFlags struct {
	logLevel string
	grpcLogs int
	bits     uint
}

func main() {
	var g globalFlags

	cmd := &cobra.Command{
		Use:          "chordkit",
		Short:        "Distributed dictionary on a Chord ring",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	cmd.PersistentFlags().IntVar(&g.grpcLogs, "grpc-log-verbosity", -1, "Verbosity of gRPC internal logs. -1 disables them")
	cmd.PersistentFlags().UintVar(&g.bits, "bits", 5, "Number of bits in ring identifiers")

	cmd.AddCommand(
		cmdCoordinator(&g),
		cmdNode(&g),

		// Client commands
		cmdAdd(&g),
		cmdLookup(&g),
		cmdLoad(&g),
		cmdRandom(&g),
		cmdPing(&g),
	)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (g *globalFlags) logger() (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(g.logLevel) {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unrecognized log level %q", g.logLevel)
	}

	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = level.NewFilter(l, opt)
	l = log.With(l, "ts", log.DefaultTimestampUTC)

	if g.grpcLogs >= 0 {
		grpclog.SetLoggerV2(chordkit.GRPCLogger(l, g.grpcLogs))
	}
	return l, nil
}

func (g *globalFlags) space() (ring.Space, error) {
	return ring.NewSpace(g.bits)
}

func newPool(l log.Logger) (*clientpool.Pool, error) {
	opts := clientpool.DefaultOptions
	opts.Log = l
	return clientpool.New(opts)
}

// newGRPCServer returns a gRPC server with the standard health service
// registered.
func newGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func serveGRPC(l log.Logger, srv *grpc.Server, lis net.Listener) {
	go func() {
		err := srv.Serve(lis)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			level.Error(l).Log("msg", "gRPC server exited", "err", err)
		}
	}()
}

// serveHTTP serves r and the metrics in reg on addr. Nothing is served when
// addr is empty. The returned function stops the server.
func serveHTTP(l log.Logger, addr string, r *mux.Router, reg *prometheus.Registry) (stop func(), err error) {
	if addr == "" {
		return func() {}, nil
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: r}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(l).Log("msg", "HTTP server exited", "err", err)
		}
	}()
	level.Info(l).Log("msg", "serving HTTP", "addr", lis.Addr())

	return func() { _ = srv.Close() }, nil
}

func waitForSignal(l log.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	level.Info(l).Log("msg", "shutting down...")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
