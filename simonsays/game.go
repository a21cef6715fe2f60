package simonsays

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
	"github.com/magical-paperclip/neighborhood-sub000/protocol"
)

const DefaultCommandDuration = 5 * time.Second

// Command is one live instruction. Commands are superseded, never mutated
// in place: rotation replaces the whole record and its attempt state.
type Command struct {
	Text     string
	Key      domain.Key
	IssuedAt time.Time

	completedBy map[string]struct{}
	attempts    map[string]*attempt
}

type attempt struct {
	attempted  bool
	lastResult domain.Outcome
}

// Game is the server-authoritative Simon Says coordinator. Exactly one
// command is live while active, replaced on a rotating deadline.
//
// Broadcasts happen while the state lock is held so that no simonSaysCommand
// can be observed after simonSaysStopped.
type Game struct {
	log         *zap.SugaredLogger
	broadcaster domain.Broadcaster
	presence    domain.Presence
	duration    time.Duration
	rng         *rand.Rand

	mu      sync.Mutex
	active  bool
	current *Command
	timer   *time.Timer

	// last reported movement per participant, kept across command
	// rotations: a key already held when a command is issued must not
	// score until it is released and pressed again.
	lastMovement map[string]domain.MovementState
}

func New(broadcaster domain.Broadcaster, presence domain.Presence, duration time.Duration, log *zap.SugaredLogger) *Game {
	if duration <= 0 {
		duration = DefaultCommandDuration
	}
	return &Game{
		log:          log,
		broadcaster:  broadcaster,
		presence:     presence,
		duration:     duration,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		lastMovement: make(map[string]domain.MovementState),
	}
}

func (g *Game) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// CurrentCommand returns the live command, if any.
func (g *Game) CurrentCommand() (protocol.CommandPayload, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return protocol.CommandPayload{}, false
	}
	return protocol.CommandPayload{Text: g.current.Text, Key: g.current.Key}, true
}

// Start activates the game and issues the first command. Calling Start while
// already active returns the live command without reissuing.
func (g *Game) Start() protocol.CommandPayload {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return protocol.CommandPayload{Text: g.current.Text, Key: g.current.Key}
	}
	g.active = true
	cmd := g.issueLocked()
	payload := protocol.CommandPayload{Text: cmd.Text, Key: cmd.Key}
	g.broadcastLocked(protocol.KindSimonSaysStarted, payload)
	g.log.Infow("simon says started", "key", cmd.Key)
	return payload
}

// Stop deactivates the game, cancelling the rotation timer before the stop
// broadcast. Idempotent: stopping an inactive game does nothing.
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.active = false
	g.current = nil
	g.pruneLocked()
	g.broadcastLocked(protocol.KindSimonSaysStopped, nil)
	g.log.Infow("simon says stopped")
}

// IssueNewCommand replaces the live command ahead of the deadline. Returns
// false when the game is inactive.
func (g *Game) IssueNewCommand() (protocol.CommandPayload, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return protocol.CommandPayload{}, false
	}
	cmd := g.issueLocked()
	payload := protocol.CommandPayload{Text: cmd.Text, Key: cmd.Key}
	g.broadcastLocked(protocol.KindSimonSaysCommand, payload)
	return payload, true
}

// ValidateMove scores one movement report against the live command using
// rising-edge detection: a flag counts only on the tick it transitions from
// released to pressed.
func (g *Game) ValidateMove(participantID string, movement domain.MovementState) domain.Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || g.current == nil {
		return domain.OutcomeNotApplicable
	}
	// unknown or already-evicted ids are a connection race, not an error:
	// no scoring, no broadcast, no ghost attempt state
	if !g.presence.Has(participantID) {
		return domain.OutcomeNotApplicable
	}
	cmd := g.current

	prev := g.lastMovement[participantID]
	g.lastMovement[participantID] = movement

	// idle participants generate no scoring noise
	if !movement.Any() && !prev.Any() {
		return domain.OutcomeNotApplicable
	}

	edges := movement.RisingEdges(prev)
	if !edges.Any() {
		return domain.OutcomeNotApplicable
	}

	a, ok := cmd.attempts[participantID]
	if !ok {
		a = &attempt{}
		cmd.attempts[participantID] = a
	}
	a.attempted = true

	var outcome domain.Outcome
	if edges.Pressed(cmd.Key) && a.lastResult != domain.OutcomeFailure {
		// a simultaneous unrelated edge does not invalidate a correct
		// press; an earlier failure on this command is sticky
		a.lastResult = domain.OutcomeSuccess
		cmd.completedBy[participantID] = struct{}{}
		outcome = domain.OutcomeSuccess
	} else {
		a.lastResult = domain.OutcomeFailure
		outcome = domain.OutcomeFailure
	}

	g.broadcastLocked(protocol.KindSimonSaysUpdate, protocol.OutcomePayload{
		PlayerID: participantID,
		Command:  protocol.CommandPayload{Text: cmd.Text, Key: cmd.Key},
		Success:  outcome == domain.OutcomeSuccess,
	})
	g.log.Debugw("move scored", "id", participantID, "key", cmd.Key, "outcome", outcome.String())
	return outcome
}

// issueLocked picks a random command, resets all attempt state, and re-arms
// the rotation timer. Cancelling before re-arming keeps exactly one timer
// outstanding. Caller holds mu and has checked active.
func (g *Game) issueLocked() *Command {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.pruneLocked()
	def := Definitions[g.rng.Intn(len(Definitions))]
	g.current = &Command{
		Text:        def.Text,
		Key:         def.Key,
		IssuedAt:    time.Now(),
		completedBy: make(map[string]struct{}),
		attempts:    make(map[string]*attempt),
	}
	g.timer = time.AfterFunc(g.duration, g.rotate)
	return g.current
}

// rotate fires on the command deadline. A stop racing the timer wins: the
// active check runs under the same lock Stop holds.
func (g *Game) rotate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}
	cmd := g.issueLocked()
	g.broadcastLocked(protocol.KindSimonSaysCommand, protocol.CommandPayload{Text: cmd.Text, Key: cmd.Key})
	g.log.Debugw("command rotated", "key", cmd.Key)
}

// pruneLocked drops movement memory for participants that have left, so the
// map stays bounded by live participants over the server's lifetime. Entries
// for present participants are kept: a held key must survive rotation.
// Caller holds mu.
func (g *Game) pruneLocked() {
	for id := range g.lastMovement {
		if !g.presence.Has(id) {
			delete(g.lastMovement, id)
		}
	}
}

func (g *Game) broadcastLocked(kind protocol.Kind, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		g.log.Warnw("encode broadcast failed", "kind", kind, "error", err)
		return
	}
	g.broadcaster.BroadcastAll(data)
}
