package simonsays

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/magical-paperclip/neighborhood-sub000/domain"
	"github.com/magical-paperclip/neighborhood-sub000/protocol"
)

type mockBroadcaster struct {
	mu   sync.Mutex
	sent [][]byte
}

func (m *mockBroadcaster) BroadcastAll(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
}

func (m *mockBroadcaster) kinds(t *testing.T) []protocol.Kind {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Kind, 0, len(m.sent))
	for _, data := range m.sent {
		env, err := protocol.DecodeEnvelope(data)
		require.NoError(t, err)
		out = append(out, env.Type)
	}
	return out
}

func (m *mockBroadcaster) countOfKind(t *testing.T, kind protocol.Kind) int {
	t.Helper()
	n := 0
	for _, k := range m.kinds(t) {
		if k == kind {
			n++
		}
	}
	return n
}

type mockPresence struct {
	mu      sync.Mutex
	members map[string]bool
}

func (m *mockPresence) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[id]
}

func (m *mockPresence) leave(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, id)
}

func newTestGame(duration time.Duration, members ...string) (*Game, *mockBroadcaster, *mockPresence) {
	b := &mockBroadcaster{}
	p := &mockPresence{members: make(map[string]bool)}
	for _, id := range members {
		p.members[id] = true
	}
	return New(b, p, duration, zap.NewNop().Sugar()), b, p
}

// forceKey pins the live command to a known key so scoring is deterministic.
func forceKey(g *Game, key domain.Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current.Key = key
}

func completedBy(g *Game, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.current.completedBy[id]
	return ok
}

func TestStartStop_Invariant(t *testing.T) {
	g, b, _ := newTestGame(time.Minute)

	assert.False(t, g.Active())
	_, ok := g.CurrentCommand()
	assert.False(t, ok)

	cmd := g.Start()
	assert.True(t, g.Active())
	current, ok := g.CurrentCommand()
	require.True(t, ok, "current must be non-nil while active")
	assert.Equal(t, cmd, current)
	assert.NotEmpty(t, cmd.Text)
	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysStarted))

	// starting again does not reissue
	again := g.Start()
	assert.Equal(t, cmd, again)
	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysStarted))

	g.Stop()
	assert.False(t, g.Active())
	_, ok = g.CurrentCommand()
	assert.False(t, ok, "current must be nil while inactive")
	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysStopped))

	// idempotent: no duplicate stop broadcast
	g.Stop()
	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysStopped))
}

func TestIssueNewCommand_InactiveReturnsFalse(t *testing.T) {
	g, b, _ := newTestGame(time.Minute)

	_, ok := g.IssueNewCommand()
	assert.False(t, ok)
	assert.Empty(t, b.kinds(t))
}

func TestValidateMove_InactiveNotApplicable(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1")

	outcome := g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)
}

func TestValidateMove_RisingEdge(t *testing.T) {
	g, b, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	// idle report: no noise for idle participants
	outcome := g.ValidateMove("p1", domain.MovementState{})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)

	// false -> true transition scores
	outcome = g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeSuccess, outcome)
	assert.True(t, completedBy(g, "p1"))

	// held key does not re-trigger
	outcome = g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)

	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysUpdate))
}

func TestValidateMove_HeldKeyNoInstantWin(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyLeft)

	// p1 presses forward during the "left" command: wrong key
	outcome := g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeFailure, outcome)

	// rotate to a "forward" command while forward is still held
	_, ok := g.IssueNewCommand()
	require.True(t, ok)
	forceKey(g, domain.KeyForward)

	// still held: no unearned success
	outcome = g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)

	// release, then press again: now it counts
	outcome = g.ValidateMove("p1", domain.MovementState{})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)
	outcome = g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeSuccess, outcome)
}

func TestValidateMove_FirstFailureIsSticky(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	outcome := g.ValidateMove("p1", domain.MovementState{Back: true})
	assert.Equal(t, domain.OutcomeFailure, outcome)

	// a later correct edge does not overwrite the failure
	outcome = g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeFailure, outcome)
	assert.False(t, completedBy(g, "p1"))
}

func TestValidateMove_FailureOverwritesSuccessState(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	require.Equal(t, domain.OutcomeSuccess, g.ValidateMove("p1", domain.MovementState{Forward: true}))
	require.Equal(t, domain.OutcomeNotApplicable, g.ValidateMove("p1", domain.MovementState{}))

	// wrong key after success: recorded as failure, but the earlier
	// completion stands
	assert.Equal(t, domain.OutcomeFailure, g.ValidateMove("p1", domain.MovementState{Jump: true}))
	assert.True(t, completedBy(g, "p1"))
}

func TestValidateMove_SimultaneousUnrelatedEdge(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	// forward and jump transition together; the mapped key wins
	outcome := g.ValidateMove("p1", domain.MovementState{Forward: true, Jump: true})
	assert.Equal(t, domain.OutcomeSuccess, outcome)
}

func TestValidateMove_IndependentParticipants(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1", "p2")
	g.Start()
	forceKey(g, domain.KeyJump)

	assert.Equal(t, domain.OutcomeSuccess, g.ValidateMove("p1", domain.MovementState{Jump: true}))
	assert.Equal(t, domain.OutcomeFailure, g.ValidateMove("p2", domain.MovementState{Left: true}))
	assert.True(t, completedBy(g, "p1"))
	assert.False(t, completedBy(g, "p2"))
}

func TestValidateMove_UnknownParticipantIgnored(t *testing.T) {
	g, b, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	outcome := g.ValidateMove("ghost", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)
	assert.Equal(t, 0, b.countOfKind(t, protocol.KindSimonSaysUpdate),
		"an unregistered id must not be scored or broadcast")

	g.mu.Lock()
	assert.NotContains(t, g.current.completedBy, "ghost")
	assert.NotContains(t, g.current.attempts, "ghost")
	assert.NotContains(t, g.lastMovement, "ghost")
	g.mu.Unlock()
}

func TestValidateMove_EvictedParticipantIgnored(t *testing.T) {
	g, b, p := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	require.Equal(t, domain.OutcomeSuccess, g.ValidateMove("p1", domain.MovementState{Forward: true}))
	require.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysUpdate))

	// a late report racing the disconnect is a no-op
	p.leave("p1")
	outcome := g.ValidateMove("p1", domain.MovementState{})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)
	outcome = g.ValidateMove("p1", domain.MovementState{Forward: true})
	assert.Equal(t, domain.OutcomeNotApplicable, outcome)
	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysUpdate))
}

func TestRotation_PrunesDepartedMovementState(t *testing.T) {
	g, _, p := newTestGame(time.Minute, "p1", "p2")
	g.Start()
	forceKey(g, domain.KeyForward)

	g.ValidateMove("p1", domain.MovementState{Forward: true})
	g.ValidateMove("p2", domain.MovementState{Jump: true})
	p.leave("p2")

	_, ok := g.IssueNewCommand()
	require.True(t, ok)

	g.mu.Lock()
	assert.NotContains(t, g.lastMovement, "p2", "departed participants must not accumulate")
	assert.Contains(t, g.lastMovement, "p1", "a live participant's held keys must survive rotation")
	g.mu.Unlock()

	g.Stop()
	p.leave("p1")
	g.mu.Lock()
	assert.Contains(t, g.lastMovement, "p1", "pruning happens on issue and stop, not continuously")
	g.mu.Unlock()
}

func TestRotation_NoAttemptCarryover(t *testing.T) {
	g, _, _ := newTestGame(time.Minute, "p1")
	g.Start()
	forceKey(g, domain.KeyForward)

	require.Equal(t, domain.OutcomeSuccess, g.ValidateMove("p1", domain.MovementState{Forward: true}))

	_, ok := g.IssueNewCommand()
	require.True(t, ok)
	forceKey(g, domain.KeyLeft)

	assert.False(t, completedBy(g, "p1"), "completion must not carry into the next command")
	g.mu.Lock()
	assert.Empty(t, g.current.attempts)
	g.mu.Unlock()

	// the fresh command scores independently
	assert.Equal(t, domain.OutcomeSuccess, g.ValidateMove("p1", domain.MovementState{Left: true}))
}

func TestRotation_TimerIssuesNewCommand(t *testing.T) {
	g, b, _ := newTestGame(30 * time.Millisecond)
	g.Start()

	g.mu.Lock()
	issued := g.current.IssuedAt
	g.mu.Unlock()

	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.current != nil && g.current.IssuedAt.After(issued)
	}, time.Second, 5*time.Millisecond, "an unfulfilled command must rotate automatically")

	assert.GreaterOrEqual(t, b.countOfKind(t, protocol.KindSimonSaysCommand), 1)
}

func TestStop_CancelsRotationTimer(t *testing.T) {
	g, b, _ := newTestGame(30 * time.Millisecond)
	g.Start()
	g.Stop()

	time.Sleep(100 * time.Millisecond)

	kinds := b.kinds(t)
	assert.Equal(t, protocol.KindSimonSaysStopped, kinds[len(kinds)-1],
		"no command may be observed after stop")
}

func TestManualIssue_RearmsSingleTimer(t *testing.T) {
	g, b, _ := newTestGame(300 * time.Millisecond)
	g.Start()

	// re-issue before the deadline; the old timer must not double-fire
	time.Sleep(100 * time.Millisecond)
	_, ok := g.IssueNewCommand()
	require.True(t, ok)

	// past the original deadline, but before the re-armed one
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, b.countOfKind(t, protocol.KindSimonSaysCommand),
		"exactly one rotation timer may be outstanding")
}

func TestDefinitions_KeysMapToMovementFlags(t *testing.T) {
	for _, def := range Definitions {
		var m domain.MovementState
		switch def.Key {
		case domain.KeyForward:
			m.Forward = true
		case domain.KeyBack:
			m.Back = true
		case domain.KeyLeft:
			m.Left = true
		case domain.KeyRight:
			m.Right = true
		case domain.KeyJump:
			m.Jump = true
		}
		assert.True(t, m.Pressed(def.Key), "command %q key %q must map to a movement flag", def.Text, def.Key)
	}
}
