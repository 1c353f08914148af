package main

import (
	"strings"
	"testing"

	"github.com/rfratto/chordkit/peer"
	"github.com/stretchr/testify/require"
)

func TestPrintPath(t *testing.T) {
	var sb strings.Builder
	printPath(&sb, []peer.Info{
		{ID: 20, Addr: "127.0.0.1:50002"},
		{ID: 10, Addr: "127.0.0.1:50001"},
		{ID: 5, Addr: "127.0.0.1:50000"},
	})
	require.Equal(t, "path: 5@127.0.0.1:50000 -> 10@127.0.0.1:50001 -> 20@127.0.0.1:50002\n", sb.String())
}

func TestGlobalFlags(t *testing.T) {
	g := globalFlags{logLevel: "warn", grpcLogs: -1, bits: 5}

	_, err := g.logger()
	require.NoError(t, err)

	space, err := g.space()
	require.NoError(t, err)
	require.Equal(t, uint64(32), space.Size())

	g.logLevel = "loud"
	_, err = g.logger()
	require.EqualError(t, err, `unrecognized log level "loud"`)

	g.bits = 0
	_, err = g.space()
	require.Error(t, err)
}
