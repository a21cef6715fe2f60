package protocol

import (
	"go.uber.org/zap"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
)

// Handler routes inbound frames from a connection to the registry and the
// minigame. Malformed or unknown frames are dropped; they must never take
// down the receive loop.
type Handler struct {
	sessions domain.Sessions
	game     domain.Minigame
	log      *zap.SugaredLogger
}

func NewHandler(sessions domain.Sessions, game domain.Minigame, log *zap.SugaredLogger) *Handler {
	return &Handler{sessions: sessions, game: game, log: log}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		h.log.Debugw("dropping malformed frame", "clientId", conn.ID(), "error", err)
		return
	}

	switch env.Type {
	case KindUpdateTransform:
		report, err := DecodePayload[TransformReport](env)
		if err != nil {
			h.log.Debugw("dropping bad transform report", "clientId", conn.ID(), "error", err)
			return
		}
		h.sessions.ReportTransform(conn.ID(), report.Position, report.Rotation, report.IsMoving)

	case KindUpdatePlayerInfo:
		update, err := DecodePayload[domain.InfoUpdate](env)
		if err != nil {
			h.log.Debugw("dropping bad info update", "clientId", conn.ID(), "error", err)
			return
		}
		h.sessions.UpdateInfo(conn.ID(), update)

	case KindSimonSaysMove:
		movement, err := DecodePayload[domain.MovementState](env)
		if err != nil {
			h.log.Debugw("dropping bad movement report", "clientId", conn.ID(), "error", err)
			return
		}
		h.game.ValidateMove(conn.ID(), movement)

	default:
		h.log.Debugw("unhandled message kind", "clientId", conn.ID(), "kind", env.Type)
	}
}
