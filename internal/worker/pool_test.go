package worker

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), Limit(0))
	assert.Equal(t, runtime.GOMAXPROCS(0), Limit(-3))
	assert.Equal(t, 4, Limit(4))
}

func TestMapPreservesOrder(t *testing.T) {
	in := make([]int, 200)
	for i := range in {
		in[i] = i
	}

	out, err := Map(in, 8, func(_ int, v int) (int, error) {
		return v * v, nil
	})
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMapReturnsError(t *testing.T) {
	boom := errors.New("boom")
	out, err := Map([]int{1, 2, 3, 4}, 2, func(i int, _ int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestForEachRespectsLimit(t *testing.T) {
	var active, peak atomic.Int32
	err := ForEach(64, 3, func(int) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		runtime.Gosched()
		active.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestForEachEmpty(t *testing.T) {
	called := false
	require.NoError(t, ForEach(0, 2, func(int) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}
