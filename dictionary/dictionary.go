// Package dictionary reads word definitions from text files and loads them
// into a ring.
//
// A dictionary file holds one "word: definition" pair per line. Whitespace
// around the word and the definition is ignored.
package dictionary

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/rfratto/chordkit/peer"
)

// LineError describes a line which could not be parsed.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

// Error implements error.
func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Parse reads entries from r. Lines which do not hold exactly one word and
// one definition are skipped and returned in warnings. err is only set if r
// could not be read.
func Parse(r io.Reader) (entries []peer.Entry, warnings error, err error) {
	sc := bufio.NewScanner(r)

	var lineNum int
	for sc.Scan() {
		lineNum++
		line := sc.Text()

		e, reason := parseLine(line)
		if reason != "" {
			warnings = multierror.Append(warnings, LineError{Line: lineNum, Text: line, Reason: reason})
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, warnings, fmt.Errorf("reading dictionary: %w", err)
	}
	return entries, warnings, nil
}

func parseLine(line string) (e peer.Entry, reason string) {
	if strings.TrimSpace(line) == "" {
		return e, "empty line"
	}

	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return e, fmt.Sprintf("expected word and definition, got %d fields", len(parts))
	}

	e = peer.NewEntry(parts[0], parts[1])
	switch {
	case e.Key == "":
		return e, "missing word"
	case e.Value == "":
		return e, "missing definition"
	}
	return e, ""
}

// ParseFile reads entries from the file at path. See Parse.
func ParseFile(path string) (entries []peer.Entry, warnings error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Adder stores entries in a ring.
type Adder interface {
	AddEntry(ctx context.Context, e peer.Entry) ([]peer.Info, error)
}

// Load adds every entry to a. Entries which fail to be added are logged and
// skipped; the returned error combines their failures. Load stops early if
// ctx is canceled.
func Load(ctx context.Context, l log.Logger, a Adder, entries []peer.Entry) (added int, err error) {
	if l == nil {
		l = log.NewNopLogger()
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return added, multierror.Append(err, ctx.Err())
		}

		path, addErr := a.AddEntry(ctx, e)
		if addErr != nil {
			level.Warn(l).Log("msg", "failed to add entry", "word", e.Key, "err", addErr)
			err = multierror.Append(err, fmt.Errorf("adding %q: %w", e.Key, addErr))
			continue
		}

		added++
		if len(path) > 0 {
			level.Debug(l).Log("msg", "added entry", "word", e.Key, "owner", path[0])
		}
	}
	return added, err
}
