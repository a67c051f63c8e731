package authz

import (
	"context"

	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
)

// Guard evaluates the authorizer against the live session every time it is
// asked, so a logout or a 401 elsewhere takes effect on the next check.
type Guard struct {
	authz   *Authorizer
	session session.Reader
}

func NewGuard(a *Authorizer, r session.Reader) *Guard {
	return &Guard{authz: a, session: r}
}

// Check returns the decision for path under the current session.
func (g *Guard) Check(path string) Decision {
	return g.authz.Authorize(g.session.Current(), path)
}

// Require returns nil when path is allowed and a *RedirectError otherwise.
func (g *Guard) Require(ctx context.Context, path string) error {
	d := g.Check(path)
	if d.Outcome == Allow {
		return nil
	}
	slogx.FromContext(ctx).Debug("navigation redirected",
		"path", NormalizePath(path),
		"outcome", d.Outcome.String(),
		"location", d.Location,
	)
	return &RedirectError{Path: path, Decision: d}
}
