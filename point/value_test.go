package point

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID_Deleted(t *testing.T) {
	id := NewID()

	assert.False(t, id.IsDeleted())
	assert.True(t, id.Deleted().IsDeleted())
	assert.NotEqual(t, id, id.Deleted())
	assert.Equal(t, id, id.Deleted().Undeleted())
}

func TestValue_Identity(t *testing.T) {
	id := NewID()
	a := Value{Point: id, Stamp: 10, Payload: 1.0}
	b := Value{Point: id, Stamp: 10, Payload: 2.0}
	c := Value{Point: id, Stamp: 11, Payload: 1.0}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestValue_SameAs(t *testing.T) {
	id := NewID()
	for _, tc := range [...]struct {
		Name   string
		A, B   Value
		Result bool
	}{
		{
			Name:   `identical`,
			A:      Value{Point: id, Stamp: 1, Payload: 1.5},
			B:      Value{Point: id, Stamp: 2, Payload: 1.5},
			Result: true,
		},
		{
			Name:   `payload differs`,
			A:      Value{Point: id, Stamp: 1, Payload: 1.5},
			B:      Value{Point: id, Stamp: 1, Payload: 2.5},
			Result: false,
		},
		{
			Name:   `variant differs`,
			A:      Value{Point: id, Stamp: 1, Payload: 1.5},
			B:      Value{Point: id, Stamp: 1, Payload: 1.5, Flags: FlagInterpolated},
			Result: false,
		},
		{
			Name:   `hint flags ignored`,
			A:      Value{Point: id, Stamp: 1, Payload: 1.5, Flags: FlagCacheable},
			B:      Value{Point: id, Stamp: 1, Payload: 1.5, Flags: FlagFetched},
			Result: true,
		},
		{
			Name:   `state differs`,
			A:      Value{Point: id, Stamp: 1, State: `ok`, Payload: 1.5},
			B:      Value{Point: id, Stamp: 1, State: `bad`, Payload: 1.5},
			Result: false,
		},
		{
			Name:   `null payloads`,
			A:      Value{Point: id, Stamp: 1},
			B:      Value{Point: id, Stamp: 2},
			Result: true,
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Result, tc.A.SameAs(tc.B))
		})
	}
}

func TestValue_Ordering(t *testing.T) {
	a := Value{Point: MustParseID(`00000000-0000-0000-0000-000000000001`), Stamp: 20}
	b := Value{Point: MustParseID(`00000000-0000-0000-0000-000000000002`), Stamp: 10}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	c := a.WithStamp(10)
	assert.True(t, c.Less(a))
}

func TestValue_Deleted(t *testing.T) {
	v := Value{Point: NewID(), Stamp: 5, Payload: 3.0, Flags: FlagCacheable}
	d := v.Deleted()

	assert.True(t, d.IsDeleted())
	assert.True(t, d.IsNull())
	assert.True(t, v.Equal(d))
	assert.False(t, d.IsCacheable())
}

func TestResultValue(t *testing.T) {
	r := NewResultValue(NewID(), 7)
	r.AddInput(Value{Point: NewID(), Stamp: 6, Payload: 1.0})
	r.AddInput(Value{Point: NewID(), Stamp: 7, Payload: 2.0})

	assert.Len(t, r.Inputs, 2)
	assert.False(t, r.IsReplaceable())

	r.Flags |= FlagReplaceable
	assert.True(t, r.IsReplaceable())

	// the plain copy drops nothing identifying
	pv := r.PointValue()
	assert.Equal(t, r.Point, pv.Point)
	assert.Equal(t, r.Stamp, pv.Stamp)
}
