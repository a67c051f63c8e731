package authz

import (
	"errors"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/busfare/internal/session"
)

// Outcome is what should happen to a navigation attempt.
type Outcome int

const (
	Allow Outcome = iota
	RedirectLogin
	RedirectHome
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Decision is the result of Authorize. Location is empty for Allow.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Authorizer decides page access from a session snapshot. It holds no
// mutable state and is safe for concurrent use.
type Authorizer struct {
	policy *Policy
}

// New builds an Authorizer over p. A nil policy means the built-in one.
func New(p *Policy) *Authorizer {
	if p == nil {
		p = DefaultPolicy()
	}
	return &Authorizer{policy: p}
}

// Policy returns the policy the authorizer evaluates.
func (a *Authorizer) Policy() *Policy { return a.policy }

// Authorize decides whether the holder of snap may open requestedPath.
//
//   - Public paths are always allowed.
//   - Without a usable session (no token, or a role the policy doesn't
//     know) the caller is sent to the login path.
//   - With a session, the path is allowed when any role that is granted it
//     is the caller's role; otherwise the caller is sent to their home.
func (a *Authorizer) Authorize(snap session.Snapshot, requestedPath string) Decision {
	p := NormalizePath(requestedPath)

	if a.policy.IsPublic(p) {
		return Decision{Outcome: Allow}
	}

	home := a.policy.Home(snap.Role)
	if !snap.Authenticated() || home == "" {
		return Decision{Outcome: RedirectLogin, Location: a.policy.LoginPath}
	}

	if slices.Contains(a.policy.rolesFor(p), snap.Role) {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: RedirectHome, Location: home}
}

var (
	// ErrLoginRequired matches a RedirectError sending the caller to login.
	ErrLoginRequired = errors.New("authz: login required")

	// ErrNotPermitted matches a RedirectError sending the caller home.
	ErrNotPermitted = errors.New("authz: not permitted for this role")
)

// RedirectError carries a non-Allow decision as an error.
type RedirectError struct {
	Path     string
	Decision Decision
}

func (e *RedirectError) Error() string {
	switch e.Decision.Outcome {
	case RedirectLogin:
		return fmt.Sprintf("%s requires a session, log in first", e.Path)
	case RedirectHome:
		return fmt.Sprintf("%s is not available to your role, your home is %s", e.Path, e.Decision.Location)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Decision.Outcome)
}

func (e *RedirectError) Is(target error) bool {
	switch target {
	case ErrLoginRequired:
		return e.Decision.Outcome == RedirectLogin
	case ErrNotPermitted:
		return e.Decision.Outcome == RedirectHome
	}
	return false
}
