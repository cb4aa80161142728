package identity

import (
	"net"
	"net/http"
	"strings"

	"netdiag-orchestrator/internal/entitlement"
)

// User is the identity forwarded by the session provider. Only the id and
// plan are read here; authentication itself happens upstream.
type User struct {
	ID   string
	Plan entitlement.Plan
}

const (
	headerUserID   = "X-User-Id"
	headerUserPlan = "X-User-Plan"
)

// FromRequest reads the forwarded identity headers. A missing user id means
// the caller is anonymous and nil is returned; anonymous is distinct from a
// free-tier user.
func FromRequest(r *http.Request) *User {
	id := strings.TrimSpace(r.Header.Get(headerUserID))
	if id == "" {
		return nil
	}
	plan := entitlement.PlanFromString(r.Header.Get(headerUserPlan))
	if plan == entitlement.Anonymous {
		plan = entitlement.Free
	}
	return &User{ID: id, Plan: plan}
}

// PlanOf maps a possibly-nil user to a plan.
func PlanOf(u *User) entitlement.Plan {
	if u == nil {
		return entitlement.Anonymous
	}
	return u.Plan
}

// SubjectID is the quota/usage key for the caller: the user id when
// authenticated, otherwise the client address so anonymous quotas still bind.
func SubjectID(u *User, r *http.Request) string {
	if u != nil {
		return u.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	return "anon:" + host
}
