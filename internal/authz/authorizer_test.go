package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/stretchr/testify/require"
)

func snap(role session.Role) session.Snapshot {
	return session.Snapshot{Token: "t1", Role: role}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	a := New(nil)

	tests := []struct {
		name string
		snap session.Snapshot
		path string
		want Decision
	}{
		{"admin opens user management", snap(session.RoleAdmin), "/gerenciar-usuarios", Decision{Outcome: Allow}},
		{"admin sent home from driver page", snap(session.RoleAdmin), "/motorista", Decision{RedirectHome, "/admin"}},
		{"no session on reports", session.Snapshot{}, "/relatorios", Decision{RedirectLogin, "/login"}},
		{"passenger sent home from fleet page", snap(session.RolePassenger), "/gerenciar-onibus", Decision{RedirectHome, "/passageiro"}},
		{"passenger opens top-up", snap(session.RolePassenger), "/recarga", Decision{Outcome: Allow}},
		{"driver opens validation below home", snap(session.RoleDriver), "/motorista/validar", Decision{Outcome: Allow}},
		{"conductor opens validation", snap(session.RoleConductor), "/cobrador/validar", Decision{Outcome: Allow}},
		{"public path without session", session.Snapshot{}, "/cadastro", Decision{Outcome: Allow}},
		{"login page with session", snap(session.RoleDriver), "/login", Decision{Outcome: Allow}},
		{"root is public", session.Snapshot{}, "/", Decision{Outcome: Allow}},
		{"root does not cover everything", session.Snapshot{}, "/carteira", Decision{RedirectLogin, "/login"}},
		{"segment aware prefix", snap(session.RoleAdmin), "/relatorios/2024", Decision{Outcome: Allow}},
		{"no partial segment match", snap(session.RoleAdmin), "/relatorios-old", Decision{RedirectHome, "/admin"}},
		{"query and fragment ignored", snap(session.RolePassenger), "/carteira?page=2#top", Decision{Outcome: Allow}},
		{"path is cleaned", snap(session.RolePassenger), "/recarga/../gerenciar-onibus", Decision{RedirectHome, "/passageiro"}},
		{"relative path", snap(session.RolePassenger), "historico", Decision{Outcome: Allow}},
		{"token without role", session.Snapshot{Token: "t1"}, "/carteira", Decision{RedirectLogin, "/login"}},
		{"role without token", session.Snapshot{Role: session.RoleAdmin}, "/admin", Decision{RedirectLogin, "/login"}},
		{"unknown role", session.Snapshot{Token: "t1", Role: "fiscal"}, "/admin", Decision{RedirectLogin, "/login"}},
		{"empty path", snap(session.RoleAdmin), "", Decision{Outcome: Allow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, a.Authorize(tt.snap, tt.path))
		})
	}
}

func TestAuthorizeIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New(nil)
	s := snap(session.RolePassenger)
	first := a.Authorize(s, "/gerenciar-onibus")
	for range 100 {
		require.Equal(t, first, a.Authorize(s, "/gerenciar-onibus"))
	}
}

func TestAuthorizeOverlapTieBreak(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(`
login: /login
public: [/login]
roles:
  motorista:
    home: /motorista
    paths: [/motorista, /validar]
  cobrador:
    home: /cobrador
    paths: [/cobrador, /validar]
`))
	require.NoError(t, err)
	require.Error(t, p.Validate())

	a := New(p)
	require.Equal(t, Allow, a.Authorize(snap(session.RoleDriver), "/validar").Outcome)
	require.Equal(t, Allow, a.Authorize(snap(session.RoleConductor), "/validar/123").Outcome)
}

func TestDefaultPolicyIsValid(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	for _, role := range session.Roles() {
		require.NotEmpty(t, p.Home(role), role)
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	t.Run("aliases and normalisation", func(t *testing.T) {
		p, err := ParsePolicy([]byte(`
public: [entrar/]
roles:
  passenger:
    home: inicio
    paths: ["/saldo/?x=1"]
`))
		require.NoError(t, err)
		require.Equal(t, "/login", p.LoginPath)
		require.Equal(t, []string{"/entrar"}, p.Public)
		require.Equal(t, RoleRule{Home: "/inicio", Paths: []string{"/saldo"}}, p.Roles[session.RolePassenger])
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := ParsePolicy([]byte("roles:\n  fiscal:\n    home: /f\n"))
		require.ErrorContains(t, err, "fiscal")
	})

	t.Run("alias listed twice", func(t *testing.T) {
		_, err := ParsePolicy([]byte("roles:\n  admin: {home: /a}\n  administrador: {home: /b}\n"))
		require.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParsePolicy([]byte("logn: /login\n"))
		require.Error(t, err)
	})
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(`
login: /entrar
public: [/]
roles:
  admin:
    paths: [/relatorios]
  cobrador:
    home: /cobrador
    paths: [/relatorios/diario]
`))
	require.NoError(t, err)

	err = p.Validate()
	require.ErrorContains(t, err, "login path /entrar is not public")
	require.ErrorContains(t, err, "role admin has no home")
	require.ErrorContains(t, err, "overlaps")
}

func TestLoadPolicy(t *testing.T) {
	t.Parallel()

	p, err := LoadPolicy("")
	require.NoError(t, err)
	require.Equal(t, "/admin", p.Home(session.RoleAdmin))

	_, err = LoadPolicy(t.TempDir() + "/missing.yaml")
	require.Error(t, err)
}

type fixedReader struct{ s session.Snapshot }

func (f *fixedReader) Current() session.Snapshot { return f.s }

func TestGuardFollowsLiveSession(t *testing.T) {
	t.Parallel()

	r := &fixedReader{s: snap(session.RoleAdmin)}
	g := NewGuard(New(nil), r)
	ctx := context.Background()

	require.NoError(t, g.Require(ctx, "/relatorios"))

	r.s = session.Snapshot{}
	err := g.Require(ctx, "/relatorios")
	require.ErrorIs(t, err, ErrLoginRequired)

	var re *RedirectError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "/login", re.Decision.Location)

	r.s = snap(session.RoleDriver)
	err = g.Require(ctx, "/relatorios")
	require.ErrorIs(t, err, ErrNotPermitted)
	require.NotErrorIs(t, err, ErrLoginRequired)
	require.Equal(t, Decision{RedirectHome, "/motorista"}, g.Check("/relatorios"))
}
