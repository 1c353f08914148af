package chordkit

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc/grpclog"
)

// GRPCLogger returns a grpclog.LoggerV2 which forwards gRPC's internal
// logging to l, mapping each gRPC severity onto the matching go-kit level.
// Messages are trimmed of trailing newlines. verbosity is the highest gRPC
// verbosity level reported as enabled by V.
//
// Install it with grpclog.SetLoggerV2 before creating any gRPC servers or
// clients.
func GRPCLogger(l log.Logger, verbosity int) grpclog.LoggerV2 {
	return &grpcOutputLogger{logger: log.With(l, "component", "grpc"), verbosity: verbosity}
}

type grpcOutputLogger struct {
	logger    log.Logger
	verbosity int
}

var _ grpclog.LoggerV2 = (*grpcOutputLogger)(nil)

func (g *grpcOutputLogger) log(lvl func(log.Logger) log.Logger, msg string) {
	_ = lvl(g.logger).Log("msg", strings.TrimRight(msg, "\n"))
}

func (g *grpcOutputLogger) Info(args ...interface{})   { g.log(level.Info, fmt.Sprint(args...)) }
func (g *grpcOutputLogger) Infoln(args ...interface{}) { g.log(level.Info, fmt.Sprintln(args...)) }
func (g *grpcOutputLogger) Infof(format string, args ...interface{}) {
	g.log(level.Info, fmt.Sprintf(format, args...))
}

func (g *grpcOutputLogger) Warning(args ...interface{})   { g.log(level.Warn, fmt.Sprint(args...)) }
func (g *grpcOutputLogger) Warningln(args ...interface{}) { g.log(level.Warn, fmt.Sprintln(args...)) }
func (g *grpcOutputLogger) Warningf(format string, args ...interface{}) {
	g.log(level.Warn, fmt.Sprintf(format, args...))
}

func (g *grpcOutputLogger) Error(args ...interface{})   { g.log(level.Error, fmt.Sprint(args...)) }
func (g *grpcOutputLogger) Errorln(args ...interface{}) { g.log(level.Error, fmt.Sprintln(args...)) }
func (g *grpcOutputLogger) Errorf(format string, args ...interface{}) {
	g.log(level.Error, fmt.Sprintf(format, args...))
}

// Fatal logs at error level and exits, as required by grpclog.LoggerV2.
func (g *grpcOutputLogger) Fatal(args ...interface{}) {
	g.log(level.Error, fmt.Sprint(args...))
	os.Exit(1)
}

func (g *grpcOutputLogger) Fatalln(args ...interface{}) {
	g.log(level.Error, fmt.Sprintln(args...))
	os.Exit(1)
}

func (g *grpcOutputLogger) Fatalf(format string, args ...interface{}) {
	g.log(level.Error, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (g *grpcOutputLogger) V(l int) bool { return l <= g.verbosity }
