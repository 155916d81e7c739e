package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCanSubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := NewConn(nil, hub, "dir-1")

	assert.True(t, conn.canSubscribe("request:01ABC"))
	assert.True(t, conn.canSubscribe("channel:chan-1"))
	assert.True(t, conn.canSubscribe("agent:dir-1"))
	assert.False(t, conn.canSubscribe("agent:dir-2"), "personal feeds belong to their owner")
	assert.False(t, conn.canSubscribe("seq:request:01ABC"))
	assert.False(t, conn.canSubscribe(""))
}

func TestSubscribeUnsubscribeBookkeeping(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := NewConn(nil, hub, "dir-1")
	hub.Register(conn)

	hub.Subscribe(conn, "request:abc")
	assert.True(t, conn.subs["request:abc"])
	assert.Len(t, hub.subs["request:abc"], 1)

	hub.Unsubscribe(conn, "request:abc")
	assert.Empty(t, conn.subs)
	assert.NotContains(t, hub.subs, "request:abc")
}

// A subscriber disconnecting in the middle of a broadcast must not
// make the fan-out loop send on a closed channel.
func TestBroadcastWithConcurrentDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())
	event := Event{Channel: "request:abc", Message: map[string]interface{}{"type": "consult.created"}}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		conn := NewConn(nil, hub, "dir-1")
		hub.Register(conn)
		hub.Subscribe(conn, "request:abc")

		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			hub.unregister(c)
		}(conn)

		hub.broadcast(event)
	}
	wg.Wait()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.conns)
	assert.Empty(t, hub.subs)
}

func TestDeliverAfterDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := NewConn(nil, hub, "dir-1")
	hub.Register(conn)

	assert.True(t, hub.deliver(conn, []byte(`{"type":"ack"}`)))

	hub.unregister(conn)
	assert.False(t, hub.deliver(conn, []byte(`{"type":"ack"}`)), "dropped connections take no frames")
}
