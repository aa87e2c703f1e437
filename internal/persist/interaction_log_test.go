package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func entry(id string) InteractionEntry {
	return InteractionEntry{Room: "office", ObjectID: id, ObjectType: "computer"}
}

func ids(entries []InteractionEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ObjectID
	}
	return out
}

func TestLogBufferDrain(t *testing.T) {
	b := NewLogBuffer(0)
	b.Add(entry("a"))
	b.Add(entry("b"))
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, []string{"a", "b"}, ids(b.Drain()))
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

func TestLogBufferRequeueKeepsOrder(t *testing.T) {
	b := NewLogBuffer(0)
	b.Add(entry("a"))
	b.Add(entry("b"))
	batch := b.Drain()
	b.Add(entry("c"))

	b.Requeue(batch)
	assert.Equal(t, []string{"a", "b", "c"}, ids(b.Drain()))
}

func TestLogBufferDropsOldestWhenFull(t *testing.T) {
	b := NewLogBuffer(2)
	b.Add(entry("a"))
	b.Add(entry("b"))
	b.Add(entry("c"))
	assert.Equal(t, 1, b.Dropped())
	assert.Equal(t, []string{"b", "c"}, ids(b.Drain()))

	b.Add(entry("d"))
	b.Requeue([]InteractionEntry{entry("x"), entry("y")})
	assert.Equal(t, 2, b.Dropped())
	assert.Equal(t, []string{"y", "d"}, ids(b.Drain()))
}
