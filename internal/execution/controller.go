package execution

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/catalog"
	"netdiag-orchestrator/internal/challenge"
	"netdiag-orchestrator/internal/entitlement"
	"netdiag-orchestrator/internal/usage"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseValidating        Phase = "validating"
	PhaseCheckingAccess    Phase = "checking_access"
	PhaseAwaitingChallenge Phase = "awaiting_challenge"
	PhaseRunning           Phase = "running"
	PhaseSucceeded         Phase = "succeeded"
	PhaseFailed            Phase = "failed"
)

var ErrNoChallengePending = errors.New("no challenge pending")

const (
	// Progress is a UX estimate; it never claims completion before the
	// backend settles.
	progressCeiling = 90
	progressStep    = 7
	progressTick    = 250 * time.Millisecond

	emptyInputMessage = "empty or missing input"
)

type QuotaSnapshot struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type ChallengeInfo struct {
	Question string `json:"question"`
	Verified bool   `json:"verified"`
}

// State is the externally visible execution state for one invocation. Owned
// and exclusively mutated by the session; callers only ever see copies.
type State struct {
	Phase           Phase           `json:"phase"`
	ProgressPercent int             `json:"progress_percent"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutionTimeMs *int64          `json:"execution_time_ms,omitempty"`
	Quota           *QuotaSnapshot  `json:"quota,omitempty"`
	Challenge       *ChallengeInfo  `json:"challenge,omitempty"`
	UpgradeRequired bool            `json:"upgrade_required,omitempty"`
}

// Session drives the execution lifecycle for one (subject, tool) pair.
// Phase transitions are strictly sequential; the invocation token discards
// late responses from superseded attempts.
type Session struct {
	subjectID string
	userID    *string
	tool      catalog.ToolDescriptor
	backend   backend.Client
	tracker   *usage.Tracker
	logger    *zap.SugaredLogger

	mu           sync.Mutex
	plan         entitlement.Plan
	token        uint64
	state        State
	puzzle       *challenge.State
	pendingInput string
}

func newSession(subjectID string, userID *string, plan entitlement.Plan, tool catalog.ToolDescriptor, client backend.Client, tracker *usage.Tracker, logger *zap.SugaredLogger) *Session {
	return &Session{
		subjectID: subjectID,
		userID:    userID,
		plan:      plan,
		tool:      tool,
		backend:   client,
		tracker:   tracker,
		logger:    logger,
		state:     State{Phase: PhaseIdle},
	}
}

// setPlan refreshes the caller's plan; entitlement is re-evaluated on every
// attempt so upgrades take effect immediately.
func (s *Session) setPlan(plan entitlement.Plan) {
	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()
}

// Snapshot returns a copy of the current execution state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Execute starts a new invocation attempt. Any in-flight attempt is
// superseded: its token is invalidated and its eventual backend response is
// discarded. The returned state is the snapshot after the synchronous
// transitions settle (running, awaiting_challenge, or failed).
func (s *Session) Execute(ctx context.Context, rawInput string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token++
	s.state = State{Phase: PhaseIdle}
	s.pendingInput = ""
	// Verification never outlives the attempt it was solved for; a new
	// attempt always faces a fresh gate, even when it supersedes a running
	// one whose settle hasn't cleared the puzzle yet.
	s.puzzle = nil

	s.state.Phase = PhaseValidating
	input := strings.TrimSpace(rawInput)
	if input == "" {
		s.failLocked(emptyInputMessage, false)
		return s.state
	}

	s.state.Phase = PhaseCheckingAccess
	usedToday := s.tracker.TodayCount(ctx, s.subjectID, s.tool.ID)
	decision := entitlement.Evaluate(s.tool, s.plan, usedToday)
	s.state.Quota = s.quotaSnapshot(usedToday)
	if !decision.CanUse {
		// Denied attempts never reach the backend and never consume quota.
		s.failLocked(decision.Reason, decision.UpgradeRequired)
		return s.state
	}

	if s.challengeRequired() && (s.puzzle == nil || !s.puzzle.Verified) {
		p := challenge.Generate()
		s.puzzle = &p
		s.pendingInput = input
		s.state.Phase = PhaseAwaitingChallenge
		s.state.Challenge = &ChallengeInfo{Question: p.Question}
		return s.state
	}

	s.startRunLocked(input)
	return s.state
}

// SubmitChallenge resolves the awaiting_challenge suspension point. A wrong
// answer invalidates the puzzle and issues a fresh one; the old question is
// never retried.
func (s *Session) SubmitChallenge(ctx context.Context, answer int) (State, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseAwaitingChallenge || s.puzzle == nil {
		return s.state, ErrNoChallengePending
	}

	if !challenge.Verify(*s.puzzle, answer) {
		p := challenge.Generate()
		s.puzzle = &p
		s.state.Challenge = &ChallengeInfo{Question: p.Question}
		return s.state, nil
	}

	s.puzzle.Verified = true
	s.state.Challenge = &ChallengeInfo{Question: s.puzzle.Question, Verified: true}
	s.startRunLocked(s.pendingInput)
	return s.state, nil
}

// challengeRequired: the gate applies to abuse-prone tools for non-paying
// callers only.
func (s *Session) challengeRequired() bool {
	return s.tool.RequiresChallenge && !s.plan.Paid()
}

func (s *Session) quotaSnapshot(usedToday int) *QuotaSnapshot {
	if s.plan.Paid() || s.tool.DailyFreeLimit <= 0 {
		return nil
	}
	remaining := s.tool.DailyFreeLimit - usedToday
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaSnapshot{Used: usedToday, Limit: s.tool.DailyFreeLimit, Remaining: remaining}
}

func (s *Session) failLocked(msg string, upgrade bool) {
	s.state.Phase = PhaseFailed
	s.state.ProgressPercent = 0
	s.state.ErrorMessage = msg
	s.state.UpgradeRequired = upgrade
	s.state.Challenge = nil
	s.pendingInput = ""
}

// startRunLocked transitions to running and launches the backend call plus
// the progress ticker. Caller holds the lock.
func (s *Session) startRunLocked(input string) {
	s.state.Phase = PhaseRunning
	s.state.ProgressPercent = 0
	s.pendingInput = ""

	token := s.token
	go s.tickProgress(token)
	go s.run(token, input)
}

func (s *Session) tickProgress(token uint64) {
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if s.token != token || s.state.Phase != PhaseRunning {
			s.mu.Unlock()
			return
		}
		if s.state.ProgressPercent < progressCeiling {
			s.state.ProgressPercent += progressStep
			if s.state.ProgressPercent > progressCeiling {
				s.state.ProgressPercent = progressCeiling
			}
		}
		s.mu.Unlock()
	}
}

func (s *Session) run(token uint64, input string) {
	// The backend call outlives the HTTP request that triggered it; it is
	// bounded by the client's own timeout.
	ctx := context.Background()
	start := time.Now()

	resp, err := s.backend.Execute(ctx, backend.Request{
		Tool:     s.tool.ID,
		Input:    input,
		UserPlan: string(s.plan),
		UserID:   s.userID,
	})

	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		s.logger.Debugw("stale_backend_response_discarded", "tool", s.tool.ID, "subject", s.subjectID)
		return
	}

	// Challenge verification is scoped to exactly this attempt.
	s.puzzle = nil
	s.state.Challenge = nil

	succeeded := err == nil && resp.Success
	if succeeded {
		elapsed := resp.ExecutionTimeMs
		if elapsed == 0 {
			elapsed = time.Since(start).Milliseconds()
		}
		s.state.Phase = PhaseSucceeded
		s.state.ProgressPercent = 100
		s.state.Result = resp.Data
		s.state.ExecutionTimeMs = &elapsed
		if resp.Usage != nil {
			s.state.Quota = &QuotaSnapshot{Used: resp.Usage.DailyUsed, Limit: resp.Usage.DailyLimit, Remaining: resp.Usage.Remaining}
		}
	} else {
		msg := "execution failed"
		if err != nil {
			msg = err.Error()
		} else if resp.Error != "" {
			msg = resp.Error
		}
		s.state.Phase = PhaseFailed
		s.state.ProgressPercent = 0
		s.state.ErrorMessage = msg
	}
	s.mu.Unlock()

	// The attempt reached the backend either way, so it counts against quota
	// and history. Tracking faults are swallowed inside the tracker.
	s.tracker.RecordOutcome(ctx, s.subjectID, s.tool.ID, succeeded)
}
