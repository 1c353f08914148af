// Package testlogger creates loggers for chordkit tests.
package testlogger

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// LevelEnv names the environment variable which controls the minimum level
// of test logs. Valid values are debug, info, warn, error and none. The
// default is debug.
const LevelEnv = "CHORDKIT_TEST_LOG_LEVEL"

// New returns a new log.Logger bound to a test. Every line is tagged with the
// name of the test and a short timestamp.
func New(t *testing.T) log.Logger {
	t.Helper()

	l := log.NewSyncLogger(log.NewLogfmtLogger(os.Stderr))
	l = level.NewFilter(l, levelOption(os.Getenv(LevelEnv)))
	l = log.WithPrefix(l,
		"test", t.Name(),
		"ts", log.Valuer(testTimestamp),
	)

	return l
}

func levelOption(s string) level.Option {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return level.AllowInfo()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "none":
		return level.AllowNone()
	default:
		return level.AllowDebug()
	}
}

// testTimestamp is a log.Valuer that returns the timestamp
// without the date or timezone, reducing the noise in the test.
func testTimestamp() interface{} {
	t := time.Now().UTC()
	return t.Format("15:04:05.000")
}
