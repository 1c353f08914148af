package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/rfratto/chordkit/client"
	"github.com/rfratto/chordkit/clientpool"
	"github.com/rfratto/chordkit/dictionary"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
	"github.com/spf13/cobra"
)

// clientFlags select the peer which client commands talk to.
type clientFlags struct {
	coordAddr string
	peerAddr  string
	timeout   time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command, timeout time.Duration) {
	cmd.Flags().StringVar(&f.coordAddr, "coordinator", "127.0.0.1:49999", "Address of the coordinator")
	cmd.Flags().StringVar(&f.peerAddr, "peer", "", "Peer to send requests to. A random peer is chosen when empty")
	cmd.Flags().DurationVar(&f.timeout, "timeout", timeout, "Timeout for the command")
}

// session is a connection to one peer of the ring.
type session struct {
	log    log.Logger
	pool   *clientpool.Pool
	remote *client.Remote
}

func (f *clientFlags) connect(ctx context.Context, g *globalFlags) (*session, error) {
	l, err := g.logger()
	if err != nil {
		return nil, err
	}
	pool, err := newPool(log.With(l, "component", "clientpool"))
	if err != nil {
		return nil, err
	}

	addr := f.peerAddr
	if addr == "" {
		p, err := client.NewCoordinator(pool, f.coordAddr).RandomPeerInfo(ctx)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("failed to pick a peer: %w", err)
		}
		addr = p.Addr
	}

	return &session{log: l, pool: pool, remote: client.NewRemote(pool, addr)}, nil
}

func (s *session) Close() error { return s.pool.Close() }

func (f *clientFlags) run(g *globalFlags, fn func(ctx context.Context, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(commandContext(cmd), f.timeout)
		defer cancel()

		s, err := f.connect(ctx, g)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, s)
	}
}

func cmdAdd(g *globalFlags) *cobra.Command {
	var f clientFlags

	cmd := &cobra.Command{
		Use:   "add [word] [definition...]",
		Short: "Stores a word and its definition",
		Args:  cobra.MinimumNArgs(2),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		e := peer.NewEntry(args[0], strings.Join(args[1:], " "))
		return f.run(g, func(ctx context.Context, s *session) error {
			path, err := s.remote.AddEntry(ctx, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", e)
			printPath(cmd.OutOrStdout(), path)
			return nil
		})(cmd, args)
	}
	f.register(cmd, 30*time.Second)
	return cmd
}

func cmdLookup(g *globalFlags) *cobra.Command {
	var f clientFlags

	cmd := &cobra.Command{
		Use:   "lookup [word]",
		Short: "Looks up the definition of a word",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return f.run(g, func(ctx context.Context, s *session) error {
			res, err := s.remote.Lookup(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if res.Found {
				fmt.Fprintln(cmd.OutOrStdout(), res.Entry)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%q not found\n", args[0])
			}
			printPath(cmd.OutOrStdout(), res.Path)
			return nil
		})(cmd, args)
	}
	f.register(cmd, 30*time.Second)
	return cmd
}

func cmdLoad(g *globalFlags) *cobra.Command {
	var f clientFlags

	cmd := &cobra.Command{
		Use:   "load [file]",
		Short: "Stores every word of a dictionary file",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		entries, warnings, err := dictionary.ParseFile(args[0])
		if err != nil {
			return err
		}
		if warnings != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), warnings)
		}

		return f.run(g, func(ctx context.Context, s *session) error {
			added, err := dictionary.Load(ctx, s.log, s.remote, entries)
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d of %d entries through %s\n", added, len(entries), s.remote.Addr())
			return err
		})(cmd, args)
	}
	f.register(cmd, 10*time.Minute)
	return cmd
}

func cmdRandom(g *globalFlags) *cobra.Command {
	var (
		coordAddr string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Prints a random peer of the ring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
			defer cancel()

			l, err := g.logger()
			if err != nil {
				return err
			}
			pool, err := newPool(l)
			if err != nil {
				return err
			}
			defer pool.Close()

			p, err := client.NewCoordinator(pool, coordAddr).RandomPeerInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.Flags().StringVar(&coordAddr, "coordinator", "127.0.0.1:49999", "Address of the coordinator")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the command")
	return cmd
}

func cmdPing(g *globalFlags) *cobra.Command {
	var (
		coordAddr string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping [id]",
		Short: "Prints the state of the peer with the given identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid identifier %q: %w", args[0], err)
			}

			ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
			defer cancel()

			l, err := g.logger()
			if err != nil {
				return err
			}
			pool, err := newPool(l)
			if err != nil {
				return err
			}
			defer pool.Close()

			info, err := client.NewCoordinator(pool, coordAddr).GetPeerInfo(ctx, ring.ID(id))
			if err != nil {
				return err
			}

			remote := client.NewRemote(pool, info.Addr)
			start := time.Now()
			if err := remote.Ping(ctx); err != nil {
				return err
			}
			rtt := time.Since(start)

			ft, err := remote.Fingers(ctx)
			if err != nil {
				return err
			}
			entries, err := remote.Shard(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "peer %s answered in %s\n", info, rtt)
			fmt.Fprintf(w, "fingers: %s\n", ft)
			fmt.Fprintf(w, "entries (%d):\n", len(entries))
			for _, e := range entries {
				fmt.Fprintf(w, "  %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&coordAddr, "coordinator", "127.0.0.1:49999", "Address of the coordinator")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the command")
	return cmd
}

// printPath writes path in the order the request travelled, from the peer
// which received it to the owner of the key.
func printPath(w io.Writer, path []peer.Info) {
	hops := make([]string, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		hops = append(hops, path[i].String())
	}
	fmt.Fprintf(w, "path: %s\n", strings.Join(hops, " -> "))
}
