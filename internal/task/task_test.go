package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerform_Success(t *testing.T) {
	tsk := New("example.com.", "enforcer", "enforce", func(owner string, ud interface{}, ctx Context) Hint {
		return SUCCESS
	}, nil, nil, 0)
	_, destroy := tsk.Perform(100)
	assert.True(t, destroy)
	assert.Equal(t, int64(0), tsk.Backoff)
}

func TestPerform_DeferBackoffMonotone(t *testing.T) {
	tsk := New("example.com.", "enforcer", "enforce", func(owner string, ud interface{}, ctx Context) Hint {
		return DEFER
	}, nil, nil, 0)

	var last int64
	for i := 0; i < 12; i++ {
		due, destroy := tsk.Perform(1000)
		require.False(t, destroy)
		assert.GreaterOrEqual(t, tsk.Backoff, last)
		assert.Equal(t, int64(1000)+tsk.Backoff, due)
		last = tsk.Backoff
	}
	assert.Equal(t, MaxBackoff, tsk.Backoff)

	// a single SUCCESS resets backoff (property 7, spec.md §8).
	tsk.Callback = func(owner string, ud interface{}, ctx Context) Hint { return SUCCESS }
	_, destroy := tsk.Perform(1000)
	assert.True(t, destroy)
	assert.Equal(t, int64(0), tsk.Backoff)
}

func TestPerform_Promptly(t *testing.T) {
	tsk := New("o", "c", "t", func(owner string, ud interface{}, ctx Context) Hint {
		return PROMPTLY
	}, nil, nil, 0)
	due, destroy := tsk.Perform(555)
	assert.False(t, destroy)
	assert.Equal(t, int64(555), due)
}

func TestPerform_Immediately(t *testing.T) {
	tsk := New("o", "c", "t", func(owner string, ud interface{}, ctx Context) Hint {
		return IMMEDIATELY
	}, nil, nil, 999)
	due, destroy := tsk.Perform(555)
	assert.False(t, destroy)
	assert.Equal(t, int64(0), due)
}

func TestPerform_AtTime(t *testing.T) {
	tsk := New("o", "c", "t", func(owner string, ud interface{}, ctx Context) Hint {
		return AtTime(12345)
	}, nil, nil, 0)
	due, destroy := tsk.Perform(1)
	assert.False(t, destroy)
	assert.Equal(t, int64(12345), due)
	assert.Equal(t, int64(0), tsk.Backoff)
}

func TestPerform_SerializesOnSharedLock(t *testing.T) {
	tsk1 := New("example.com.", "enforcer", "enforce", func(owner string, ud interface{}, ctx Context) Hint {
		return SUCCESS
	}, nil, nil, 0)
	tsk2 := New("example.com.", "signer", "sign", func(owner string, ud interface{}, ctx Context) Hint {
		return SUCCESS
	}, nil, nil, 0)

	shared := &sync.Mutex{}
	tsk1.Lock = shared
	tsk2.Lock = shared

	tsk1.Perform(1)
	tsk2.Perform(2)
}

func TestTriple_Less(t *testing.T) {
	a := Triple{Owner: "a.com.", Class: "enforcer", Type: "enforce"}
	b := Triple{Owner: "b.com.", Class: "enforcer", Type: "enforce"}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}
