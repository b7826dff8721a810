// Package trace persists the engine's per-batch value traces: one stream for
// received notices, one for sent updates. Values accumulate in memory during
// the batch; Commit writes them as a single atomically renamed file in the
// stream's directory, so a crash never leaves a partial batch behind, and
// Rollback discards them.
package trace

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/joeycumines/logiface"

	"github.com/xapiens/rvpf-processor/point"
)

func init() {
	// payloads and states are interface-typed; register the supported
	// concrete kinds for the stream encoding
	gob.Register(float64(0))
	gob.Register(int64(0))
	gob.Register(``)
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register(time.Time{})
}

const fileSuffix = `.trace`

// Record is one traced value, as persisted.
type Record struct {
	Point   string
	Stamp   int64
	State   any
	Payload any
	Flags   uint16
}

// Stream is one append-only trace stream. A nil Stream is disabled: Add,
// Commit and Rollback are no-ops.
type Stream struct {
	dir    string
	logger *logiface.Logger[logiface.Event]
	seq    uint64
	buf    []Record
}

// Open creates (or reuses) the stream directory and positions the sequence
// after the last committed batch.
func Open(dir string, logger *logiface.Logger[logiface.Event]) (*Stream, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf(`trace: create stream directory: %w`, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf(`trace: read stream directory: %w`, err)
	}

	var seq uint64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		if n >= seq {
			seq = n + 1
		}
	}

	return &Stream{dir: dir, logger: logger, seq: seq}, nil
}

// Add appends a value to the current batch.
func (x *Stream) Add(v point.Value) {
	if x == nil {
		return
	}
	x.buf = append(x.buf, Record{
		Point:   v.Point.String(),
		Stamp:   int64(v.Stamp),
		State:   v.State,
		Payload: v.Payload,
		Flags:   uint16(v.Flags),
	})
}

// Len returns the number of values in the current batch.
func (x *Stream) Len() int {
	if x == nil {
		return 0
	}
	return len(x.buf)
}

// Commit atomically persists the current batch and starts a new one. An
// empty batch commits to nothing.
func (x *Stream) Commit() error {
	if x == nil || len(x.buf) == 0 {
		return nil
	}

	var data bytes.Buffer
	if err := gob.NewEncoder(&data).Encode(x.buf); err != nil {
		return fmt.Errorf(`trace: encode batch: %w`, err)
	}

	path := filepath.Join(x.dir, fmt.Sprintf(`%09d%s`, x.seq, fileSuffix))
	if err := renameio.WriteFile(path, data.Bytes(), 0o644); err != nil {
		return fmt.Errorf(`trace: commit batch: %w`, err)
	}

	x.logger.Trace().
		Str(`path`, path).
		Int(`values`, len(x.buf)).
		Log(`trace batch committed`)

	x.seq++
	x.buf = x.buf[:0]
	return nil
}

// Rollback discards the current batch.
func (x *Stream) Rollback() {
	if x == nil {
		return
	}
	x.buf = x.buf[:0]
}

// Read returns the committed records of one batch file, for inspection.
func Read(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, fmt.Errorf(`trace: decode batch: %w`, err)
	}
	return records, nil
}
