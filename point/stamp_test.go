package point

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStamp_NextPrev(t *testing.T) {
	s := StampFromTime(time.Unix(10, 500))

	assert.Equal(t, s+1, s.Next())
	assert.Equal(t, s-1, s.Prev())
	assert.Equal(t, s, s.Next().Prev())

	// saturation at the bounds
	assert.Equal(t, StampMax, StampMax.Next())
	assert.Equal(t, StampMin, StampMin.Prev())
}

func TestStamp_Ordering(t *testing.T) {
	a := Stamp(100)
	b := Stamp(200)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.False(t, a.After(a))
}

func TestInterval_Contains(t *testing.T) {
	for _, tc := range [...]struct {
		Name     string
		Interval Interval
		Stamp    Stamp
		Result   bool
	}{
		{`unlimited`, Unlimited(), 42, true},
		{`at hit`, At(42), 42, true},
		{`at miss before`, At(42), 41, false},
		{`at miss after`, At(42), 43, false},
		{`not before inclusive`, NotBefore(42), 42, true},
		{`not before miss`, NotBefore(42), 41, false},
		{`before exclusive`, Before(42), 42, false},
		{`before hit`, Before(42), 41, true},
		{`between lower inclusive`, Between(10, 20), 10, true},
		{`between upper exclusive`, Between(10, 20), 20, false},
		{`between hit`, Between(10, 20), 15, true},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Result, tc.Interval.Contains(tc.Stamp))
		})
	}
}

func TestInterval_Instant(t *testing.T) {
	s, ok := At(42).Instant()
	assert.True(t, ok)
	assert.Equal(t, Stamp(42), s)

	_, ok = Between(10, 20).Instant()
	assert.False(t, ok)

	_, ok = Unlimited().Instant()
	assert.False(t, ok)
}

func TestInterval_Trim(t *testing.T) {
	i := Unlimited().Trim(Between(10, 20)).Trim(NotBefore(12)).Trim(Before(18))

	after, ok := i.After()
	assert.True(t, ok)
	assert.Equal(t, Stamp(12), after)

	before, ok := i.Before()
	assert.True(t, ok)
	assert.Equal(t, Stamp(18), before)

	assert.False(t, i.IsEmpty())
	assert.True(t, Between(20, 10).IsEmpty())
}
