package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetAndPush(t *testing.T) {
	c := NewChannel()

	c.Reset()
	c.Push(Update{Percent: 50, Status: "processing"})
	assert.Equal(t, 50.0, c.Current().Percent)
	assert.Equal(t, "processing", c.Current().Status)

	c.Reset()
	assert.Equal(t, Update{}, c.Current())
}

func TestPushClamps(t *testing.T) {
	c := NewChannel()

	c.Push(Update{Percent: 140})
	assert.Equal(t, 100.0, c.Current().Percent)

	c.Push(Update{Percent: -3})
	assert.Equal(t, 0.0, c.Current().Percent)
}

func TestSubscribe(t *testing.T) {
	c := NewChannel()

	var got []Update
	unsubscribe := c.Subscribe(func(u Update) { got = append(got, u) })
	assert.Equal(t, 1, c.Subscribers())

	c.Push(Update{Percent: 10, Status: "processing"})
	c.Reset()
	assert.Equal(t, []Update{{Percent: 10, Status: "processing"}, {}}, got)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, c.Subscribers())

	c.Push(Update{Percent: 90})
	assert.Len(t, got, 2)
}

func TestSubscriberMayUnsubscribeDuringDelivery(t *testing.T) {
	c := NewChannel()

	calls := 0
	var unsubscribe func()
	unsubscribe = c.Subscribe(func(Update) {
		calls++
		unsubscribe()
	})

	c.Push(Update{Percent: 1})
	c.Push(Update{Percent: 2})
	assert.Equal(t, 1, calls)
}
