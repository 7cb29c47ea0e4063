package clients

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/urbanpack/offsync/internal/logger"
)

// fakeClient records sends and can simulate a dead connection.
type fakeClient struct {
	id   string
	fail bool

	mu       sync.Mutex
	received []any
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(v any) error {
	if c.fail {
		return errors.New("connection closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, v)
	return nil
}

func (c *fakeClient) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.received...)
}

func testHub() *Hub {
	return NewHub(logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
}

func TestHub_RegisterUnregisterCount(t *testing.T) {
	h := testHub()
	assert.Zero(t, h.Count())

	h.Register(&fakeClient{id: "a"})
	h.Register(&fakeClient{id: "b"})
	assert.Equal(t, 2, h.Count())

	h.Unregister("a")
	assert.Equal(t, 1, h.Count())

	// Unregistering an unknown ID is a no-op.
	h.Unregister("ghost")
	assert.Equal(t, 1, h.Count())
}

func TestHub_RegisterSameIDReplaces(t *testing.T) {
	h := testHub()
	old := &fakeClient{id: "a"}
	replacement := &fakeClient{id: "a"}
	h.Register(old)
	h.Register(replacement)
	assert.Equal(t, 1, h.Count())

	h.Broadcast("hello")
	assert.Empty(t, old.messages())
	assert.Len(t, replacement.messages(), 1)
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h := testHub()
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	h.Register(a)
	h.Register(b)

	h.Broadcast(map[string]string{"type": "CACHE_COMPLETE"})

	assert.Len(t, a.messages(), 1)
	assert.Len(t, b.messages(), 1)
}

func TestHub_DeadClientDoesNotBlockOthers(t *testing.T) {
	h := testHub()
	dead := &fakeClient{id: "dead", fail: true}
	live := &fakeClient{id: "live"}
	h.Register(dead)
	h.Register(live)

	h.Broadcast("notice")
	assert.Len(t, live.messages(), 1)
}

func TestHub_ClaimAnnouncesVersion(t *testing.T) {
	h := testHub()
	c := &fakeClient{id: "a"}
	h.Register(c)

	h.Claim("town-v2")

	msgs := c.messages()
	assert.Equal(t, []any{map[string]string{
		"type":    "CLIENT_CLAIM",
		"version": "town-v2",
	}}, msgs)
}
