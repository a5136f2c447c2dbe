package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_RegisterAndLookup(t *testing.T) {
	d := NewDirectory()
	conn := &Conn{id: "c1"}

	prev := d.Register("room", "alice", conn)
	assert.Nil(t, prev)

	got, ok := d.Lookup("room", "alice")
	require.True(t, ok)
	assert.Same(t, conn, got)

	_, ok = d.Lookup("room", "bob")
	assert.False(t, ok)
	_, ok = d.Lookup("other", "alice")
	assert.False(t, ok)
}

func TestDirectory_RegisterSupersedes(t *testing.T) {
	d := NewDirectory()
	first := &Conn{id: "c1"}
	second := &Conn{id: "c2"}

	d.Register("room", "alice", first)
	prev := d.Register("room", "alice", second)
	assert.Same(t, first, prev, "the replaced transport is handed back for closing")

	got, _ := d.Lookup("room", "alice")
	assert.Same(t, second, got)
	assert.Equal(t, 1, d.ConnectionCount())
}

func TestDirectory_UnregisterOnlyCurrentConn(t *testing.T) {
	d := NewDirectory()
	first := &Conn{id: "c1"}
	second := &Conn{id: "c2"}

	d.Register("room", "alice", first)
	d.Register("room", "alice", second)

	// The superseded transport's cleanup must not evict its successor.
	assert.False(t, d.Unregister("room", "alice", first))
	_, ok := d.Lookup("room", "alice")
	assert.True(t, ok)

	assert.True(t, d.Unregister("room", "alice", second))
	_, ok = d.Lookup("room", "alice")
	assert.False(t, ok)

	assert.False(t, d.Unregister("room", "alice", second), "second unregister is a no-op")
}

func TestDirectory_DetachRemovesAnyConn(t *testing.T) {
	d := NewDirectory()
	conn := &Conn{id: "c1"}
	d.Register("room", "alice", conn)

	got := d.Detach("room", "alice")
	assert.Same(t, conn, got)
	assert.Nil(t, d.Detach("room", "alice"))

	_, ok := d.Lookup("room", "alice")
	assert.False(t, ok)
}

func TestDirectory_MembersAndCount(t *testing.T) {
	d := NewDirectory()
	d.Register("room", "alice", &Conn{id: "c1"})
	d.Register("room", "bob", &Conn{id: "c2"})
	d.Register("other", "carol", &Conn{id: "c3"})

	members := d.Members("room")
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{string(members[0]), string(members[1])})
	assert.Equal(t, 3, d.ConnectionCount())

	d.Detach("room", "alice")
	d.Detach("room", "bob")
	assert.Empty(t, d.Members("room"))
	assert.Equal(t, 1, d.ConnectionCount())
}
