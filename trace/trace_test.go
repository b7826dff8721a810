package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf-processor/point"
)

func TestStream_CommitRollback(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)

	id := point.NewID()

	s.Add(point.Value{Point: id, Stamp: 1, Payload: 1.5})
	s.Add(point.Value{Point: id, Stamp: 2, Payload: 2.5})
	require.Equal(t, 2, s.Len())
	require.NoError(t, s.Commit())
	assert.Equal(t, 0, s.Len())

	// rolled-back batches leave no file behind
	s.Add(point.Value{Point: id, Stamp: 3, Payload: 3.5})
	s.Rollback()
	require.NoError(t, s.Commit()) // empty, no-op

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	records, err := Read(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id.String(), records[0].Point)
	assert.Equal(t, int64(1), records[0].Stamp)
	assert.Equal(t, 1.5, records[0].Payload)
}

func TestStream_SequenceResumes(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	s.Add(point.Value{Point: point.NewID(), Stamp: 1})
	require.NoError(t, s.Commit())

	// reopening continues after the committed batch
	s, err = Open(dir, nil)
	require.NoError(t, err)
	s.Add(point.Value{Point: point.NewID(), Stamp: 2})
	require.NoError(t, s.Commit())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].Name(), entries[1].Name())
}

func TestStream_NilDisabled(t *testing.T) {
	var s *Stream

	s.Add(point.Value{Point: point.NewID(), Stamp: 1})
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, s.Commit())
	s.Rollback()
}
