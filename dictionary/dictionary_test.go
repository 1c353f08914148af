package dictionary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/rfratto/chordkit/internal/testlogger"
	"github.com/rfratto/chordkit/peer"
	"github.com/stretchr/testify/require"
)

const testDictionary = `cat: a small domesticated feline
  dog :   a domesticated canine  

no definition here
time: 12:30
: missing word
owl:
`

func TestParse(t *testing.T) {
	entries, warnings, err := Parse(strings.NewReader(testDictionary))
	require.NoError(t, err)

	expect := []peer.Entry{
		{Key: "cat", Value: "a small domesticated feline"},
		{Key: "dog", Value: "a domesticated canine"},
	}
	require.Equal(t, expect, entries)

	var merr *multierror.Error
	require.ErrorAs(t, warnings, &merr)
	require.Len(t, merr.Errors, 5)

	var lineErr LineError
	require.ErrorAs(t, merr.Errors[0], &lineErr)
	require.Equal(t, 3, lineErr.Line)
	require.Equal(t, "empty line", lineErr.Reason)

	require.ErrorAs(t, merr.Errors[2], &lineErr)
	require.Equal(t, 5, lineErr.Line, "definitions containing a colon are malformed")
}

func TestParse_Clean(t *testing.T) {
	entries, warnings, err := Parse(strings.NewReader("cat: feline\n"))
	require.NoError(t, err)
	require.NoError(t, warnings)
	require.Len(t, entries, 1)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte(testDictionary), 0o644))

	entries, warnings, err := ParseFile(path)
	require.NoError(t, err)
	require.Error(t, warnings)
	require.Len(t, entries, 2)

	_, _, err = ParseFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

type fakeAdder struct {
	added []peer.Entry
	fail  map[string]bool
}

func (a *fakeAdder) AddEntry(_ context.Context, e peer.Entry) ([]peer.Info, error) {
	if a.fail[e.Key] {
		return nil, errors.New("no owner")
	}
	a.added = append(a.added, e)
	return []peer.Info{{ID: 1, Addr: "peer-1"}}, nil
}

func TestLoad(t *testing.T) {
	entries := []peer.Entry{
		peer.NewEntry("cat", "feline"),
		peer.NewEntry("dog", "canine"),
		peer.NewEntry("owl", "bird"),
	}

	t.Run("all entries", func(t *testing.T) {
		a := &fakeAdder{}
		added, err := Load(context.Background(), testlogger.New(t), a, entries)
		require.NoError(t, err)
		require.Equal(t, 3, added)
		require.Equal(t, entries, a.added)
	})

	t.Run("failures are skipped", func(t *testing.T) {
		a := &fakeAdder{fail: map[string]bool{"dog": true}}
		added, err := Load(context.Background(), testlogger.New(t), a, entries)
		require.Error(t, err)
		require.Contains(t, err.Error(), `adding "dog"`)
		require.Equal(t, 2, added)
		require.Len(t, a.added, 2)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		a := &fakeAdder{}
		added, err := Load(ctx, nil, a, entries)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, added)
	})
}
