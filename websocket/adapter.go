package websocket

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ErrBufferFull is returned when a participant's send queue is saturated.
// The frame is dropped; stale realtime state is worthless by the time the
// queue drains.
var ErrBufferFull = errors.New("websocket: send buffer full")

// Conn adapts one gorilla connection to the registry. The registry assigns
// the participant id on Start; the connection only holds a back-pointer to
// it, never the other way around.
type Conn struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	sessions domain.Sessions
	handler  domain.MessageHandler
	log      *zap.SugaredLogger
}

func NewConn(ws *websocket.Conn, sessions domain.Sessions, handler domain.MessageHandler, log *zap.SugaredLogger) *Conn {
	return &Conn{
		ws:       ws,
		send:     make(chan []byte, 256),
		sessions: sessions,
		handler:  handler,
		log:      log,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Start registers the participant (identity seeded from the handshake, if
// supplied) and launches the pumps.
func (c *Conn) Start(info domain.JoinInfo) {
	p := c.sessions.Register(c, info)
	c.id = p.ID
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.sessions.Deregister(c.id)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnw("read error", "clientId", c.id, "error", err)
			}
			return
		}
		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
