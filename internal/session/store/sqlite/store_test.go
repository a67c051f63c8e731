package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/aussiebroadwan/busfare/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dsn string, sealer *cryptox.Sealer) *Store {
	t.Helper()

	st, err := NewStore(dsn, sealer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func mustSealer(t *testing.T, material string) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte(material))
	require.NoError(t, err)
	return s
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, ":memory:", mustSealer(t, "k"))

	rec, err := st.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, rec.Token)
	require.Empty(t, rec.Profile)

	require.NoError(t, st.Save(ctx, session.Record{
		Token:   "t1",
		Profile: []byte(`{"perfil":"admin","nome":"Admin"}`),
	}))

	rec, err = st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "t1", rec.Token)
	require.JSONEq(t, `{"perfil":"admin","nome":"Admin"}`, string(rec.Profile))

	require.NoError(t, st.Clear(ctx))
	require.NoError(t, st.Clear(ctx), "clearing twice is fine")

	rec, err = st.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, rec.Token)
}

func TestValuesAreSealedAtRest(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, ":memory:", mustSealer(t, "k"))

	require.NoError(t, st.Put(ctx, session.KeyToken, []byte("plain-token")))

	var raw []byte
	err := st.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, session.KeyToken).Scan(&raw)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "plain-token")

	got, err := st.Get(ctx, session.KeyToken)
	require.NoError(t, err)
	require.Equal(t, "plain-token", string(got))
}

func TestSessionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := NewStore(path, mustSealer(t, "k"))
	require.NoError(t, err)
	require.NoError(t, first.ApplyMigrations())
	require.NoError(t, first.Save(ctx, session.Record{Token: "t1", Profile: []byte(`{}`)}))
	require.NoError(t, first.Close())

	second := newTestStore(t, path, mustSealer(t, "k"))
	rec, err := second.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "t1", rec.Token)
}

func TestWrongKeyIsCorrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := NewStore(path, mustSealer(t, "one"))
	require.NoError(t, err)
	require.NoError(t, first.ApplyMigrations())
	require.NoError(t, first.Save(ctx, session.Record{Token: "t1", Profile: []byte(`{}`)}))
	require.NoError(t, first.Close())

	second := newTestStore(t, path, mustSealer(t, "two"))
	_, err = second.Load(ctx)
	require.ErrorIs(t, err, session.ErrCorrupt)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, ":memory:", nil)

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.put(ctx, tx, "a", []byte("1")); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	require.ErrorIs(t, err, sql.ErrTxDone)

	_, err = st.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	st := newTestStore(t, ":memory:", nil)
	require.NoError(t, st.ApplyMigrations())
	require.NoError(t, st.Ping(context.Background()))
}
