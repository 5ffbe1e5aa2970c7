package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ctfex.com/internal/feed"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var market = common.HexToHash("0xc0ffee")

func dial(t *testing.T, broker feed.Broker) (*Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(ctx, broker)
	srv := httptest.NewServer(NewServer(ctx, hub, "ctfex"))
	t.Cleanup(srv.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return hub, c
}

func send(t *testing.T, c *websocket.Conn, m ClientMsg) {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, b))
}

func read(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	return b
}

func TestStream_SubscribeReceiveUnsubscribe(t *testing.T) {
	broker := feed.NewMemBroker(16)
	hub, c := dial(t, broker)

	send(t, c, ClientMsg{Type: "sub", Markets: []string{market.Hex()}})
	var ack ServerMsg
	require.NoError(t, json.Unmarshal(read(t, c), &ack))
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, 1, hub.Topics())

	topic := feed.Topic("ctfex", market)
	require.NoError(t, broker.Publish(context.Background(), topic, []byte(`{"type":"trade","seq":1}`)))
	require.NoError(t, broker.Publish(context.Background(), feed.Topic("ctfex", common.HexToHash("0xbeef")), []byte(`{"type":"trade","seq":9}`)))
	require.NoError(t, broker.Publish(context.Background(), topic, []byte(`{"type":"trade","seq":2}`)))

	assert.JSONEq(t, `{"type":"trade","seq":1}`, string(read(t, c)))
	assert.JSONEq(t, `{"type":"trade","seq":2}`, string(read(t, c)))

	send(t, c, ClientMsg{Type: "unsub", Markets: []string{market.Hex()}})
	require.NoError(t, json.Unmarshal(read(t, c), &ack))
	assert.Equal(t, "unsubscribed", ack.Type)
	assert.Zero(t, hub.Topics())
}

func TestStream_BadRequests(t *testing.T) {
	_, c := dial(t, feed.NewMemBroker(16))

	cases := []ClientMsg{
		{Type: "sub", Markets: []string{"0x1234"}},
		{Type: "sub"},
		{Type: "ping", Markets: []string{market.Hex()}},
	}
	for _, m := range cases {
		send(t, c, m)
		var got ServerMsg
		require.NoError(t, json.Unmarshal(read(t, c), &got))
		assert.Equal(t, "error", got.Type, "%+v", m)
	}

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))
	var got ServerMsg
	require.NoError(t, json.Unmarshal(read(t, c), &got))
	assert.Equal(t, "error", got.Type)
}

func TestConn_SlowConsumerIsClosed(t *testing.T) {
	c := newConn(nil, nil, 1)
	assert.True(t, c.Offer([]byte("a")))
	assert.False(t, c.Offer([]byte("b")))
	assert.True(t, c.slow.Load())
	assert.False(t, c.Offer([]byte("c")))

	select {
	case <-c.done:
	default:
		t.Fatal("done not closed")
	}
}

func TestHub_RemoveConnClosesUpstream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(ctx, feed.NewMemBroker(4))
	a, b := newConn(hub, nil, 4), newConn(hub, nil, 4)

	require.NoError(t, hub.Subscribe(a, []string{"t1", "t2"}))
	require.NoError(t, hub.Subscribe(b, []string{"t1"}))
	assert.Equal(t, 2, hub.Topics())

	hub.RemoveConn(a)
	assert.Equal(t, 1, hub.Topics())

	hub.Publish("t1", []byte("x"))
	assert.Equal(t, "x", string(<-b.send))
	assert.Empty(t, a.send)
}
