package chordkit

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestGRPCLogger(t *testing.T) {
	cases := []struct {
		name     string
		write    func(l *grpcOutputLogger)
		expected string
	}{
		{
			name:     "info level",
			write:    func(l *grpcOutputLogger) { l.Info("Subchannel picks a new address") },
			expected: "level=info component=grpc msg=\"Subchannel picks a new address\"\n",
		},
		{
			name:     "info line",
			write:    func(l *grpcOutputLogger) { l.Infoln("Channel switches to new LB policy") },
			expected: "level=info component=grpc msg=\"Channel switches to new LB policy\"\n",
		},
		{
			name:     "warning format",
			write:    func(l *grpcOutputLogger) { l.Warningf("addrConn: failed to dial %s", "127.0.0.1:50000") },
			expected: "level=warn component=grpc msg=\"addrConn: failed to dial 127.0.0.1:50000\"\n",
		},
		{
			name:     "error level",
			write:    func(l *grpcOutputLogger) { l.Error("transport: loopyWriter exited") },
			expected: "level=error component=grpc msg=\"transport: loopyWriter exited\"\n",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := GRPCLogger(log.NewLogfmtLogger(&buf), 0).(*grpcOutputLogger)
			c.write(l)
			require.Equal(t, c.expected, buf.String())
		})
	}
}

func TestGRPCLogger_Verbosity(t *testing.T) {
	l := GRPCLogger(log.NewNopLogger(), 2)
	require.True(t, l.V(0))
	require.True(t, l.V(2))
	require.False(t, l.V(3))
}
