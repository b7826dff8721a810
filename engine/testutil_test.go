package engine

import (
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

type testWriter struct {
	t *testing.T
}

func (x testWriter) Write(p []byte) (int, error) {
	x.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

// testLogger routes engine logs into the test output.
func testLogger(t *testing.T) *logiface.Logger[logiface.Event] {
	t.Helper()
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(testWriter{t: t})),
		stumpy.L.WithLevel(stumpy.L.LevelDebug()),
	).Logger()
}
