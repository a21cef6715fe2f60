package domain

// Vec3 is a position in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is an orientation as a unit quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func IdentityQuat() Quat {
	return Quat{W: 1}
}

// Key identifies one canonical input a minigame command can map to.
type Key string

const (
	KeyForward Key = "w"
	KeyBack    Key = "s"
	KeyLeft    Key = "a"
	KeyRight   Key = "d"
	KeyJump    Key = "space"
)

// MovementState is the decoded input flags for a single tick.
type MovementState struct {
	Forward bool `json:"forward"`
	Back    bool `json:"back"`
	Left    bool `json:"left"`
	Right   bool `json:"right"`
	Jump    bool `json:"jump"`
}

func (m MovementState) Any() bool {
	return m.Forward || m.Back || m.Left || m.Right || m.Jump
}

func (m MovementState) Pressed(k Key) bool {
	switch k {
	case KeyForward:
		return m.Forward
	case KeyBack:
		return m.Back
	case KeyLeft:
		return m.Left
	case KeyRight:
		return m.Right
	case KeyJump:
		return m.Jump
	}
	return false
}

// RisingEdges reports which flags are set now but were not set in prev.
func (m MovementState) RisingEdges(prev MovementState) MovementState {
	return MovementState{
		Forward: m.Forward && !prev.Forward,
		Back:    m.Back && !prev.Back,
		Left:    m.Left && !prev.Left,
		Right:   m.Right && !prev.Right,
		Jump:    m.Jump && !prev.Jump,
	}
}

const DefaultDisplayName = "Anonymous"

// Participant is one connected session in the realtime layer.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Position    Vec3   `json:"position"`
	Rotation    Quat   `json:"rotation"`
	Moving      bool   `json:"isMoving"`
}

// JoinInfo is the optional identity supplied with the connection handshake.
type JoinInfo struct {
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// InfoUpdate is a partial identity update; nil fields are left unchanged.
type InfoUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
}

// Outcome classifies one scored minigame input report.
type Outcome int

const (
	OutcomeNotApplicable Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	}
	return "not applicable"
}

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Broadcaster fans a payload out to every connected participant.
type Broadcaster interface {
	BroadcastAll(data []byte)
}

// Presence answers whether a participant id is currently registered.
type Presence interface {
	Has(id string) bool
}

// Sessions is the participant registry surface the transport and the
// protocol handler depend on.
type Sessions interface {
	Register(conn Connection, info JoinInfo) Participant
	Deregister(id string)
	UpdateInfo(id string, update InfoUpdate)
	ReportTransform(id string, position Vec3, rotation Quat, moving bool)
}

type Minigame interface {
	ValidateMove(participantID string, movement MovementState) Outcome
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
