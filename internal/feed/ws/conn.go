package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ctfex.com/internal/feed"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/metrics"
	"ctfex.com/pkg/safe"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

var errBadMarket = errors.New("market must be 0x-prefixed 32-byte hex")

type Conn struct {
	ws     *websocket.Conn
	hub    *Hub
	send   chan []byte
	closed atomic.Bool
	slow   atomic.Bool
	done   chan struct{}
	once   sync.Once
}

func newConn(h *Hub, ws *websocket.Conn, buf int) *Conn {
	return &Conn{ws: ws, hub: h, send: make(chan []byte, buf), done: make(chan struct{})}
}

// Offer 不阻塞; send 队列满说明客户端跟不上, 直接断开, 不静默丢事件
func (c *Conn) Offer(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		metrics.WSMessagesTotal.WithLabelValues("dropped").Inc()
		c.slow.Store(true)
		c.close()
		return false
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	Prefix   string // 和 feed.Relay 用同一个前缀
	SendBuf  int

	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
	ReadLimit  int64

	ctx context.Context
}

func NewServer(ctx context.Context, h *Hub, prefix string) *Server {
	if prefix == "" {
		prefix = "ctfex"
	}
	return &Server{
		Hub: h,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 跨域由 http 层的 cors 处理
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Prefix:     prefix,
		SendBuf:    1024,
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		WriteWait:  5 * time.Second,
		ReadLimit:  4 << 10,
		ctx:        ctx,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写了 4xx
		return
	}
	c := newConn(s.Hub, wsConn, s.SendBuf)
	metrics.WSConns.Inc()
	safe.GoCtx(s.ctx, func(ctx context.Context) { s.writePump(ctx, c) })
	safe.GoCtx(s.ctx, func(ctx context.Context) { s.readPump(ctx, c) })
}

func (s *Server) readPump(ctx context.Context, c *Conn) {
	defer func() {
		c.close()
		c.hub.RemoveConn(c)
		_ = c.ws.Close()
		metrics.WSConns.Dec()
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed.Load() {
				logger.Debug(ctx, "stream read ended", zap.Error(err))
			}
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			s.reply(c, ServerMsg{Type: "error", Message: "bad message"})
			continue
		}
		topics, err := s.topics(msg.Markets)
		if err != nil {
			s.reply(c, ServerMsg{Type: "error", Message: err.Error()})
			continue
		}
		switch msg.Type {
		case "sub":
			if err := c.hub.Subscribe(c, topics); err != nil {
				logger.Warn(ctx, "stream subscribe failed", zap.Error(err))
				s.reply(c, ServerMsg{Type: "error", Message: "subscribe failed"})
				continue
			}
			s.reply(c, ServerMsg{Type: "subscribed", Markets: msg.Markets})
		case "unsub":
			c.hub.Unsubscribe(c, topics)
			s.reply(c, ServerMsg{Type: "unsubscribed", Markets: msg.Markets})
		default:
			s.reply(c, ServerMsg{Type: "error", Message: "type must be sub or unsub"})
		}
	}
}

func (s *Server) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
			metrics.WSMessagesTotal.WithLabelValues("sent").Inc()
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			if c.slow.Load() {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer"),
					time.Now().Add(s.WriteWait))
			}
			return
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(s.WriteWait))
			return
		}
	}
}

func (s *Server) reply(c *Conn, m ServerMsg) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.Offer(b)
}

func (s *Server) topics(markets []string) ([]string, error) {
	if len(markets) == 0 {
		return nil, errBadMarket
	}
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		b, err := hexutil.Decode(m)
		if err != nil || len(b) != common.HashLength {
			return nil, errBadMarket
		}
		out = append(out, feed.Topic(s.Prefix, common.BytesToHash(b)))
	}
	return out, nil
}
