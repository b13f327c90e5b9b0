package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectDisconnectTransitions(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.Connect("u1", "c1"), "first connection is the online transition")
	assert.False(t, tr.Connect("u1", "c2"), "second connection is not")
	assert.True(t, tr.IsOnline("u1"))
	assert.Equal(t, 2, tr.ConnectionCount("u1"))

	assert.False(t, tr.Disconnect("u1", "c1"), "one connection remains")
	assert.True(t, tr.IsOnline("u1"))
	assert.Equal(t, 1, tr.ConnectionCount("u1"))

	assert.True(t, tr.Disconnect("u1", "c2"), "last disconnect is the offline transition")
	assert.False(t, tr.IsOnline("u1"))
	assert.Equal(t, 0, tr.ConnectionCount("u1"))

	assert.False(t, tr.Disconnect("u1", "c2"), "disconnecting twice is a no-op")
	assert.False(t, tr.Disconnect("ghost", "c9"))
}

func TestConnectIdempotent(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.Connect("u1", "c1"))
	assert.False(t, tr.Connect("u1", "c1"), "repeat connect for the same conn id does not double-count")
	assert.Equal(t, 1, tr.ConnectionCount("u1"))

	assert.True(t, tr.Disconnect("u1", "c1"), "one disconnect is enough")
	assert.False(t, tr.IsOnline("u1"))
}

func TestReconnectAfterOffline(t *testing.T) {
	tr := NewTracker()

	tr.Connect("u1", "c1")
	tr.Disconnect("u1", "c1")
	assert.True(t, tr.Connect("u1", "c2"), "going online again is a fresh transition")
	assert.True(t, tr.IsOnline("u1"))
}

func TestListOnline(t *testing.T) {
	tr := NewTracker()

	tr.Connect("u1", "c1")
	tr.Connect("u2", "c2")
	tr.Connect("u2", "c3")
	tr.Connect("u3", "c4")
	tr.Disconnect("u3", "c4")

	assert.ElementsMatch(t, []string{"u1", "u2"}, tr.ListOnline())
}

func TestConcurrentChurn(t *testing.T) {
	tr := NewTracker()

	const workers = 16
	const rounds = 200

	var onlines, offlines int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var on, off int64
			for i := range rounds {
				connID := fmt.Sprintf("c%d-%d", w, i)
				if tr.Connect("u1", connID) {
					on++
				}
				if tr.Disconnect("u1", connID) {
					off++
				}
			}
			mu.Lock()
			onlines += on
			offlines += off
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Every observed online transition has a matching offline one.
	assert.Equal(t, onlines, offlines)
	assert.False(t, tr.IsOnline("u1"))
	assert.Empty(t, tr.ListOnline())
}
