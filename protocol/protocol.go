package protocol

import (
	"encoding/json"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
)

// Kind names one wire event. Payloads are decoded exactly once, at the
// transport boundary; components never switch on raw strings elsewhere.
type Kind string

const (
	// server -> client
	KindPlayers           Kind = "players"
	KindPlayerJoined      Kind = "playerJoined"
	KindPlayerLeft        Kind = "playerLeft"
	KindPlayerMoved       Kind = "playerMoved"
	KindPlayerInfoUpdated Kind = "playerInfoUpdated"
	KindDisconnect        Kind = "disconnect"
	KindSimonSaysStarted  Kind = "simonSaysStarted"
	KindSimonSaysStopped  Kind = "simonSaysStopped"
	KindSimonSaysCommand  Kind = "simonSaysCommand"
	KindSimonSaysUpdate   Kind = "simonSaysUpdate"

	// client -> server
	KindUpdateTransform  Kind = "updateTransform"
	KindUpdatePlayerInfo Kind = "updatePlayerInfo"
	KindSimonSaysMove    Kind = "simonSaysMove"
)

type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TransformReport is the client's per-tick position report.
type TransformReport struct {
	Position domain.Vec3 `json:"position"`
	Rotation domain.Quat `json:"rotation"`
	IsMoving bool        `json:"isMoving"`
}

type PlayerLeft struct {
	ID string `json:"id"`
}

// CommandPayload is the public view of an active minigame command.
type CommandPayload struct {
	Text string     `json:"text"`
	Key  domain.Key `json:"key"`
}

type OutcomePayload struct {
	PlayerID string         `json:"playerId"`
	Command  CommandPayload `json:"command"`
	Success  bool           `json:"success"`
}

type DisconnectPayload struct {
	Reason string `json:"reason"`
}
