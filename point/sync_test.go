package point

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedSync(t *testing.T) {
	sync := NewElapsedSync(time.Second, 0)

	sec := Stamp(time.Second)

	assert.True(t, sync.InSync(0))
	assert.True(t, sync.InSync(5*sec))
	assert.False(t, sync.InSync(5*sec+1))

	next, ok := sync.NextStamp(5 * sec)
	require.True(t, ok)
	assert.Equal(t, 6*sec, next)

	next, ok = sync.NextStamp(5*sec + 1)
	require.True(t, ok)
	assert.Equal(t, 6*sec, next)

	prev, ok := sync.PrevStamp(5 * sec)
	require.True(t, ok)
	assert.Equal(t, 4*sec, prev)

	prev, ok = sync.PrevStamp(5*sec + 1)
	require.True(t, ok)
	assert.Equal(t, 5*sec, prev)
}

func TestElapsedSync_Offset(t *testing.T) {
	sync := NewElapsedSync(time.Minute, 10*time.Second)

	assert.True(t, sync.InSync(Stamp(10*time.Second)))
	assert.True(t, sync.InSync(Stamp(70*time.Second)))
	assert.False(t, sync.InSync(Stamp(time.Minute)))
}

func TestNewElapsedSync_Panics(t *testing.T) {
	assert.Panics(t, func() { NewElapsedSync(0, 0) })
}
