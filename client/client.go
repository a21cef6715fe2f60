package client

import (
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
	"github.com/magical-paperclip/neighborhood-sub000/protocol"
)

const (
	defaultRetryDelay = 3 * time.Second
	writeWait         = 5 * time.Second
)

// infoRetrySchedule re-sends an identity update to tolerate identity data
// resolving out of order with connection establishment.
var infoRetrySchedule = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// Client owns exactly one connection to the coordination server and retries
// it indefinitely with a fixed delay. Callbacks fire synchronously from the
// receive loop and must not block.
type Client struct {
	url        string
	log        *zap.SugaredLogger
	RetryDelay time.Duration

	OnPlayers           func(players []domain.Participant)
	OnPlayerJoined      func(p domain.Participant)
	OnPlayerLeft        func(id string)
	OnPlayerMoved       func(p domain.Participant)
	OnPlayerInfoUpdated func(p domain.Participant)
	OnConnectionStatus  func(connected bool)
	OnGameStarted       func(cmd protocol.CommandPayload)
	OnGameStopped       func()
	OnCommand           func(cmd protocol.CommandPayload)
	OnOutcome           func(outcome protocol.OutcomePayload)

	mu        sync.Mutex
	writeMu   sync.Mutex
	ws        *websocket.Conn
	connected bool
	started   bool
	stop      chan struct{}
}

func New(serverURL string, log *zap.SugaredLogger) *Client {
	return &Client{
		url:        serverURL,
		log:        log,
		RetryDelay: defaultRetryDelay,
	}
}

// Connect starts the connection loop. Idempotent: a second call while
// already running is a no-op. Identity from info, if any, is carried in the
// handshake query string.
func (c *Client) Connect(info domain.JoinInfo) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go c.run(info, stop)
}

// Disconnect tears the connection down and stops reconnecting. Safe to call
// when not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stop)
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// UpdateTransform is fire and forget: silently dropped while disconnected.
// No queueing; a stale position is worthless once reconnected.
func (c *Client) UpdateTransform(position domain.Vec3, rotation domain.Quat, moving bool) {
	c.send(protocol.KindUpdateTransform, protocol.TransformReport{
		Position: position,
		Rotation: rotation,
		IsMoving: moving,
	})
}

// ReportMovement submits this tick's decoded input flags to the minigame.
func (c *Client) ReportMovement(movement domain.MovementState) {
	c.send(protocol.KindSimonSaysMove, movement)
}

// UpdatePlayerInfo pushes identity resolved after connect. It re-sends on a
// short schedule in case the socket was not up yet when called; the resends
// run even when called before Connect, and each one no-ops while
// disconnected.
func (c *Client) UpdatePlayerInfo(displayName, avatarURL string) {
	update := domain.InfoUpdate{DisplayName: &displayName, AvatarURL: &avatarURL}
	c.send(protocol.KindUpdatePlayerInfo, update)

	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	for _, delay := range infoRetrySchedule {
		go func(d time.Duration) {
			select {
			case <-stop:
			case <-time.After(d):
				c.send(protocol.KindUpdatePlayerInfo, update)
			}
		}(delay)
	}
}

func (c *Client) run(info domain.JoinInfo, stop chan struct{}) {
	dialURL := c.url
	if u, err := url.Parse(c.url); err == nil {
		q := u.Query()
		if info.DisplayName != "" {
			q.Set("name", info.DisplayName)
		}
		if info.AvatarURL != "" {
			q.Set("avatar", info.AvatarURL)
		}
		u.RawQuery = q.Encode()
		dialURL = u.String()
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		ws, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
		if err != nil {
			c.log.Debugw("dial failed, retrying", "url", c.url, "error", err)
			select {
			case <-stop:
				return
			case <-time.After(c.RetryDelay):
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.connected = true
		c.mu.Unlock()
		c.log.Infow("connected", "url", c.url)
		c.statusChanged(true)

		c.readLoop(ws)

		c.mu.Lock()
		c.ws = nil
		c.connected = false
		c.mu.Unlock()
		c.log.Infow("disconnected", "url", c.url)

		// all peer knowledge is discarded on disconnect: status flip,
		// then an empty snapshot so renderers drop every avatar
		c.statusChanged(false)
		if c.OnPlayers != nil {
			c.OnPlayers(nil)
		}

		select {
		case <-stop:
			return
		case <-time.After(c.RetryDelay):
		}
	}
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.log.Debugw("dropping malformed frame", "error", err)
		return
	}

	switch env.Type {
	case protocol.KindPlayers:
		players, err := protocol.DecodePayload[[]domain.Participant](env)
		if err != nil {
			c.log.Debugw("bad players payload", "error", err)
			return
		}
		if c.OnPlayers != nil {
			c.OnPlayers(players)
		}
	case protocol.KindPlayerJoined:
		c.dispatchParticipant(env, c.OnPlayerJoined)
	case protocol.KindPlayerMoved:
		c.dispatchParticipant(env, c.OnPlayerMoved)
	case protocol.KindPlayerInfoUpdated:
		c.dispatchParticipant(env, c.OnPlayerInfoUpdated)
	case protocol.KindPlayerLeft:
		left, err := protocol.DecodePayload[protocol.PlayerLeft](env)
		if err != nil {
			c.log.Debugw("bad playerLeft payload", "error", err)
			return
		}
		if c.OnPlayerLeft != nil {
			c.OnPlayerLeft(left.ID)
		}
	case protocol.KindSimonSaysStarted:
		c.dispatchCommand(env, c.OnGameStarted)
	case protocol.KindSimonSaysCommand:
		c.dispatchCommand(env, c.OnCommand)
	case protocol.KindSimonSaysStopped:
		if c.OnGameStopped != nil {
			c.OnGameStopped()
		}
	case protocol.KindSimonSaysUpdate:
		outcome, err := protocol.DecodePayload[protocol.OutcomePayload](env)
		if err != nil {
			c.log.Debugw("bad outcome payload", "error", err)
			return
		}
		if c.OnOutcome != nil {
			c.OnOutcome(outcome)
		}
	case protocol.KindDisconnect:
		if reason, err := protocol.DecodePayload[protocol.DisconnectPayload](env); err == nil {
			c.log.Infow("server disconnect", "reason", reason.Reason)
		}
	default:
		c.log.Debugw("unhandled message kind", "kind", env.Type)
	}
}

func (c *Client) dispatchParticipant(env protocol.Envelope, cb func(domain.Participant)) {
	p, err := protocol.DecodePayload[domain.Participant](env)
	if err != nil {
		c.log.Debugw("bad participant payload", "kind", env.Type, "error", err)
		return
	}
	if cb != nil {
		cb(p)
	}
}

func (c *Client) dispatchCommand(env protocol.Envelope, cb func(protocol.CommandPayload)) {
	cmd, err := protocol.DecodePayload[protocol.CommandPayload](env)
	if err != nil {
		c.log.Debugw("bad command payload", "kind", env.Type, "error", err)
		return
	}
	if cb != nil {
		cb(cmd)
	}
}

func (c *Client) statusChanged(connected bool) {
	if c.OnConnectionStatus != nil {
		c.OnConnectionStatus(connected)
	}
}

func (c *Client) send(kind protocol.Kind, payload any) {
	c.mu.Lock()
	ws := c.ws
	ok := c.connected
	c.mu.Unlock()
	if !ok || ws == nil {
		return
	}

	data, err := protocol.Encode(kind, payload)
	if err != nil {
		c.log.Warnw("encode failed", "kind", kind, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debugw("write failed", "kind", kind, "error", err)
	}
}
