package segments

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nextconvert/cutstudio/internal/modules/timecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAdd(t *testing.T) {
	t.Run("appends in insertion order", func(t *testing.T) {
		s := NewSet()
		first, err := s.Add("00:00:20", "00:00:30")
		require.NoError(t, err)
		second, err := s.Add("00:00:00", "00:00:10")
		require.NoError(t, err)

		list := s.List()
		require.Len(t, list, 2)
		assert.Equal(t, first, list[0])
		assert.Equal(t, second, list[1])
		assert.Equal(t, 20, list[0].Start)
		assert.Equal(t, 30, list[0].End)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("rejects reversed range", func(t *testing.T) {
		s := NewSet()
		_, err := s.Add("00:00:10", "00:00:05")
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, RangeOrder, vErr.Kind)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("rejects empty range", func(t *testing.T) {
		s := NewSet()
		_, err := s.Add("00:00:10", "00:00:10")
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, RangeOrder, vErr.Kind)
	})

	t.Run("rejects bad format on either side", func(t *testing.T) {
		s := NewSet()
		for _, pair := range [][2]string{{"0:10", "00:00:20"}, {"00:00:00", "abc"}, {"2562047788015216:00:00", "00:00:10"}} {
			_, err := s.Add(pair[0], pair[1])
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, InvalidFormat, vErr.Kind)

			var pErr *timecode.ParseError
			assert.ErrorAs(t, err, &pErr)
		}
		assert.Equal(t, 0, s.Len())
	})

	t.Run("allows overlap", func(t *testing.T) {
		s := NewSet()
		_, err := s.Add("00:00:00", "00:01:00")
		require.NoError(t, err)
		_, err = s.Add("00:00:30", "00:01:30")
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())
	})
}

func TestSetRemove(t *testing.T) {
	s := NewSet()
	first, err := s.Add("00:00:00", "00:00:10")
	require.NoError(t, err)
	second, err := s.Add("00:10:00", "00:20:00")
	require.NoError(t, err)

	s.Remove(first.ID)
	assert.Equal(t, []Segment{second}, s.List())

	s.Remove("missing")
	s.Remove(first.ID)
	assert.Equal(t, []Segment{second}, s.List())
}

func TestSetListIsACopy(t *testing.T) {
	s := NewSet()
	_, err := s.Add("00:00:00", "00:00:10")
	require.NoError(t, err)

	list := s.List()
	list[0].Start = 5
	assert.Equal(t, 0, s.List()[0].Start)
}

func TestSetConcurrentAdd(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Add(timecode.FormatSeconds(i), timecode.FormatSeconds(i+1))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, seg := range s.List() {
		assert.False(t, seen[seg.ID], fmt.Sprintf("duplicate id %s", seg.ID))
		seen[seg.ID] = true
	}
	assert.Len(t, seen, 50)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.For("a")
	assert.Same(t, a, r.For("a"))
	assert.NotSame(t, a, r.For("b"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryExpire(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := NewRegistry()
	r.now = func() time.Time { return now }

	r.For("old")
	now = now.Add(2 * time.Hour)
	r.For("fresh")

	assert.Equal(t, 1, r.Expire(time.Hour))
	assert.Equal(t, 1, r.Len())

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0, r.Expire(time.Hour))
	assert.Equal(t, 1, r.Len())
}
