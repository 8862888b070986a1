package api

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/bussim/internal/command"
	"github.com/san-kum/bussim/internal/sim"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64

	// rateCheck bounds how long the hub sleeps before re-reading refresh_rate.
	rateCheck = 250 * time.Millisecond
)

type reply struct {
	to    *clientConn
	frame Frame
}

// Hub owns the set of stream clients and samples the store for them.
// The clients map is only touched by the Run goroutine.
type Hub struct {
	surface  *command.Surface
	fallback time.Duration
	logger   *log.Logger
	clients  map[*clientConn]bool
	joins    chan *clientConn
	leaves   chan *clientConn
	replies  chan reply
	done     chan struct{}
	count    atomic.Int64
	frames   atomic.Uint64
}

func NewHub(surface *command.Surface, fallback time.Duration, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		surface:  surface,
		fallback: fallback,
		logger:   logger,
		clients:  make(map[*clientConn]bool),
		joins:    make(chan *clientConn),
		leaves:   make(chan *clientConn),
		replies:  make(chan reply),
		done:     make(chan struct{}),
	}
}

// Clients reports the number of connected stream clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Frames reports how many state frames have been broadcast.
func (h *Hub) Frames() uint64 { return h.frames.Load() }

// Interval is the current sampling period: refresh_rate in milliseconds,
// or the fallback while the rate is 0.
func (h *Hub) Interval() time.Duration {
	return sim.RefreshInterval(h.surface.Snapshot().RefreshRate, h.fallback)
}

// Run drives the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	last := time.Now()
	timer := time.NewTimer(h.wait(last))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			h.logger.Printf("api: stream hub stopped")
			return
		case c := <-h.joins:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			if msg, ok := h.stateMessage(); ok {
				h.deliver(c, msg)
			}
		case c := <-h.leaves:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
			}
		case r := <-h.replies:
			if !h.clients[r.to] {
				continue
			}
			msg, err := json.Marshal(r.frame)
			if err != nil {
				h.logger.Printf("api: encode reply: %v", err)
				continue
			}
			h.deliver(r.to, msg)
		case <-timer.C:
			if time.Since(last) >= h.Interval() {
				h.broadcast()
				last = time.Now()
			}
			timer.Reset(h.wait(last))
		}
	}
}

// wait is the time left until the next frame is due after last, capped at
// rateCheck.
func (h *Hub) wait(last time.Time) time.Duration {
	d := h.Interval() - time.Since(last)
	if d < 0 {
		return 0
	}
	return min(d, rateCheck)
}

func (h *Hub) broadcast() {
	if len(h.clients) == 0 {
		return
	}
	msg, ok := h.stateMessage()
	if !ok {
		return
	}
	for c := range h.clients {
		h.deliver(c, msg)
	}
	h.frames.Add(1)
}

// deliver drops slow clients instead of blocking the hub.
func (h *Hub) deliver(c *clientConn, msg []byte) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
		h.count.Store(int64(len(h.clients)))
		h.logger.Printf("api: dropped slow stream client")
	}
}

func (h *Hub) stateMessage() ([]byte, bool) {
	snap := h.surface.Snapshot()
	msg, err := json.Marshal(Frame{Type: FrameState, State: &snap})
	if err != nil {
		h.logger.Printf("api: encode state frame: %v", err)
		return nil, false
	}
	return msg, true
}

func (h *Hub) register(c *clientConn) bool {
	select {
	case h.joins <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) release(c *clientConn) {
	select {
	case h.leaves <- c:
	case <-h.done:
	}
}

func (h *Hub) respond(c *clientConn, f Frame) {
	select {
	case h.replies <- reply{to: c, frame: f}:
	case <-h.done:
	}
}

type clientConn struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClientConn(h *Hub, conn *websocket.Conn) *clientConn {
	return &clientConn{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
}

// readPump runs command frames sent by the client through the surface and
// queues a result frame for each, until the connection closes.
func (c *clientConn) readPump() {
	defer func() {
		c.hub.release(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("api: stream read: %v", err)
			}
			return
		}

		var in Frame
		if err := json.Unmarshal(message, &in); err != nil {
			c.hub.respond(c, Frame{Type: FrameResult, Error: err.Error()})
			continue
		}
		out := Frame{Type: FrameResult, Command: in.Command}
		res, err := c.hub.surface.Invoke(in.Command, in.Args)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Result = res
		}
		c.hub.respond(c, out)
	}
}

func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
