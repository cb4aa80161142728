package execution

import (
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/catalog"
	"netdiag-orchestrator/internal/entitlement"
	"netdiag-orchestrator/internal/usage"
)

// Anonymous subjects are keyed by client IP, so the session map would grow
// without bound on a public deployment. Sessions idle past this window are
// dropped on the next lookup; in-flight and gated sessions are never dropped.
const sessionTTL = 30 * time.Minute

type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// Registry hands out one Session per (subject, tool) pair. Sessions are
// created lazily and reaped once they have been idle for sessionTTL; a
// returning caller within the window gets the same session and therefore the
// supersession guarantee.
type Registry struct {
	backend backend.Client
	tracker *usage.Tracker
	logger  *zap.SugaredLogger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type NewRegistryParams struct {
	fx.In

	Backend backend.Client
	Tracker *usage.Tracker
	Logger  *zap.SugaredLogger
}

func NewRegistry(p NewRegistryParams) *Registry {
	return &Registry{
		backend:  p.Backend,
		tracker:  p.Tracker,
		logger:   p.Logger,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Session returns the session for the caller and tool, refreshing the plan on
// every fetch so entitlement changes apply to the next attempt.
func (r *Registry) Session(subjectID string, userID *string, plan entitlement.Plan, tool catalog.ToolDescriptor) *Session {
	key := subjectID + "|" + tool.ID
	now := r.now()

	r.mu.Lock()
	r.sweepLocked(now)
	e, ok := r.sessions[key]
	if !ok {
		e = &sessionEntry{session: newSession(subjectID, userID, plan, tool, r.backend, r.tracker, r.logger)}
		r.sessions[key] = e
	}
	e.lastUsed = now
	r.mu.Unlock()

	if ok {
		e.session.setPlan(plan)
	}
	return e.session
}

// Peek returns an existing session without creating one. A hit counts as use,
// so status polling keeps the session alive.
func (r *Registry) Peek(subjectID, toolID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[subjectID+"|"+toolID]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.session, true
}

// sweepLocked drops sessions idle past the TTL. Sessions still awaiting a
// challenge answer or with an attempt in flight stay until they settle.
func (r *Registry) sweepLocked(now time.Time) {
	for key, e := range r.sessions {
		if now.Sub(e.lastUsed) < sessionTTL {
			continue
		}
		switch e.session.Snapshot().Phase {
		case PhaseAwaitingChallenge, PhaseRunning:
			continue
		}
		delete(r.sessions, key)
	}
}
