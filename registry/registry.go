package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
	"github.com/magical-paperclip/neighborhood-sub000/protocol"
)

type session struct {
	participant    domain.Participant
	conn           domain.Connection
	lastMoveFanout time.Time
}

// Registry is the authoritative map of connected participants. It owns all
// participant state; transport code never mutates it directly.
type Registry struct {
	log *zap.SugaredLogger

	// minimum interval between accepted playerMoved fan-outs per
	// participant; zero disables coalescing. The stored transform is
	// always last-write-wins regardless.
	minMoveInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

func New(log *zap.SugaredLogger, minMoveInterval time.Duration) *Registry {
	return &Registry{
		log:             log,
		minMoveInterval: minMoveInterval,
		sessions:        make(map[string]*session),
	}
}

// Register creates a participant with a server-assigned id, sends the
// current snapshot (excluding the newcomer) to its connection, and announces
// the join to everyone else.
func (r *Registry) Register(conn domain.Connection, info domain.JoinInfo) domain.Participant {
	p := domain.Participant{
		ID:          uuid.NewString(),
		DisplayName: info.DisplayName,
		AvatarURL:   info.AvatarURL,
		Rotation:    domain.IdentityQuat(),
	}
	if p.DisplayName == "" {
		p.DisplayName = domain.DefaultDisplayName
	}

	r.mu.Lock()
	others := make([]domain.Participant, 0, len(r.sessions))
	peers := make([]domain.Connection, 0, len(r.sessions))
	for _, s := range r.sessions {
		others = append(others, s.participant)
		peers = append(peers, s.conn)
	}
	r.sessions[p.ID] = &session{participant: p, conn: conn}
	count := len(r.sessions)
	r.mu.Unlock()

	r.sendTo(conn, protocol.KindPlayers, others)
	r.fanOut(peers, protocol.KindPlayerJoined, p)
	r.log.Infow("participant joined", "id", p.ID, "name", p.DisplayName, "participants", count)
	return p
}

// UpdateInfo applies a partial identity update. Later calls override earlier
// ones; unknown ids are ignored.
func (r *Registry) UpdateInfo(id string, update domain.InfoUpdate) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if update.DisplayName != nil {
		s.participant.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		s.participant.AvatarURL = *update.AvatarURL
	}
	p := s.participant
	peers := r.peersLocked(id)
	r.mu.Unlock()

	r.fanOut(peers, protocol.KindPlayerInfoUpdated, p)
	r.log.Debugw("participant info updated", "id", id, "name", p.DisplayName)
}

// ReportTransform stores the participant's latest transform (last write
// wins, no sequence numbers) and fans the full record out to everyone else.
func (r *Registry) ReportTransform(id string, position domain.Vec3, rotation domain.Quat, moving bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.participant.Position = position
	s.participant.Rotation = rotation
	s.participant.Moving = moving

	now := time.Now()
	if r.minMoveInterval > 0 && now.Sub(s.lastMoveFanout) < r.minMoveInterval {
		r.mu.Unlock()
		return
	}
	s.lastMoveFanout = now
	p := s.participant
	peers := r.peersLocked(id)
	r.mu.Unlock()

	r.fanOut(peers, protocol.KindPlayerMoved, p)
}

// Deregister removes the participant and announces the departure. Safe to
// call for an already-absent id.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	peers := r.peersLocked(id)
	count := len(r.sessions)
	r.mu.Unlock()

	r.fanOut(peers, protocol.KindPlayerLeft, protocol.PlayerLeft{ID: id})
	r.log.Infow("participant left", "id", id, "participants", count)
}

func (r *Registry) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.participant)
	}
	return out
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// BroadcastAll sends an already-encoded frame to every participant, with no
// exclusion. Used by the minigame coordinator.
func (r *Registry) BroadcastAll(data []byte) {
	r.mu.RLock()
	conns := make([]domain.Connection, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			r.log.Debugw("broadcast send failed", "clientId", c.ID(), "error", err)
		}
	}
}

// peersLocked collects every connection except the given id. Caller holds mu.
func (r *Registry) peersLocked(except string) []domain.Connection {
	peers := make([]domain.Connection, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		peers = append(peers, s.conn)
	}
	return peers
}

// fanOut is best effort per recipient: one failing peer must not block the
// rest.
func (r *Registry) fanOut(peers []domain.Connection, kind protocol.Kind, payload any) {
	if len(peers) == 0 {
		return
	}
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		r.log.Warnw("encode broadcast failed", "kind", kind, "error", err)
		return
	}
	for _, c := range peers {
		if err := c.Send(data); err != nil {
			r.log.Debugw("broadcast send failed", "kind", kind, "clientId", c.ID(), "error", err)
		}
	}
}

func (r *Registry) sendTo(conn domain.Connection, kind protocol.Kind, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		r.log.Warnw("encode send failed", "kind", kind, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		r.log.Debugw("send failed", "kind", kind, "clientId", conn.ID(), "error", err)
	}
}
