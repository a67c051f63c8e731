package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, apiURL string) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		APIURL:        apiURL,
		StateFile:     filepath.Join(dir, "state", "session.db"),
		MasterKeyPath: filepath.Join(dir, "state", "master.key"),
		PollInterval:  10 * time.Millisecond,
		PollCeiling:   time.Second,
		MinTopUpCents: 100,
		CameraDir:     filepath.Join(dir, "camera"),
		HTTPTimeout:   5 * time.Second,
	}
}

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token":"t1","usuario":{"id":1,"perfil":"admin","nome":"Admin"}}`)
	})
	mux.HandleFunc("GET /carteira", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(slogx.RequestIDHeader) == "" {
			t.Error("request id missing")
		}
		_, _ = io.WriteString(w, `{"saldo":12.5}`)
	})
	mux.HandleFunc("GET /onibus", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionSurvivesRestart(t *testing.T) {
	srv := backend(t)
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	first, err := New(ctx, cfg, Options{Logger: slogx.Discard()})
	require.NoError(t, err)

	_, err = first.Session.Login(ctx, faresdk.Credentials{CPF: "00000000000", Password: "admin123"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, Options{Logger: slogx.Discard()})
	require.NoError(t, err)
	defer second.Close()

	cur := second.Session.Current()
	require.Equal(t, session.RoleAdmin, cur.Role)
	require.NoError(t, second.Guard.Require(ctx, "/gerenciar-usuarios"))

	w, err := second.Client.Wallet(ctx)
	require.NoError(t, err)
	require.InDelta(t, 12.5, w.Balance, 0.001)
}

func TestUnauthorizedResponseLogsOut(t *testing.T) {
	srv := backend(t)
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	a, err := New(ctx, cfg, Options{Logger: slogx.Discard()})
	require.NoError(t, err)
	defer a.Close()

	var navigated string
	a.Session.Navigate = func(_ context.Context, path string) { navigated = path }

	_, err = a.Session.Login(ctx, faresdk.Credentials{})
	require.NoError(t, err)

	_, err = a.Client.Buses().List(ctx)
	require.ErrorIs(t, err, faresdk.ErrUnauthorized)
	require.False(t, a.Session.Current().Authenticated())
	require.Equal(t, "/login", navigated)

	reopened, err := New(ctx, cfg, Options{Logger: slogx.Discard()})
	require.NoError(t, err)
	defer reopened.Close()
	require.False(t, reopened.Session.Current().Authenticated())
}

func TestEphemeralMode(t *testing.T) {
	srv := backend(t)
	cfg := testConfig(t, srv.URL)
	cfg.Ephemeral = true
	cfg.StateFile = ""

	a, err := New(context.Background(), cfg, Options{Logger: slogx.Discard()})
	require.NoError(t, err)
	require.Nil(t, a.store)
	require.NoError(t, a.Close())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t, "not a url")
	_, err := New(context.Background(), cfg, Options{Logger: slogx.Discard()})
	require.Error(t, err)
}
