package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/italolelis/restricted_saver/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *sqlite.UserRepository {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return sqlite.NewUserRepository(db)
}

func TestAddUser_Idempotent(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.AddUser(7, "alice"))
	require.NoError(t, repo.AddUser(7, "renamed"), "re-adding an existing id is a no-op")

	exists, err := repo.Exists(7)
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := repo.CountUsers()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	users, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Name, "the original registration wins")
}

func TestExists_Unknown(t *testing.T) {
	repo := newTestRepo(t)

	exists, err := repo.Exists(404)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.AddUser(7, "alice"))

	// No session until one is stored.
	_, ok, err := repo.GetSession(7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetSession(7, "session-credential"))

	session, ok, err := repo.GetSession(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "session-credential", session)

	// An empty string clears the credential (logout).
	require.NoError(t, repo.SetSession(7, ""))

	_, ok, err = repo.GetSession(7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyPairRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.AddUser(7, "alice"))

	_, _, ok, err := repo.GetKeyPair(7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetKeyPair(7, 777, "api-hash"))

	apiID, apiHash, ok, err := repo.GetKeyPair(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 777, apiID)
	assert.Equal(t, "api-hash", apiHash)
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.AddUser(7, "alice"))
	require.NoError(t, repo.AddUser(8, "bob"))

	require.NoError(t, repo.Delete(7))

	exists, err := repo.Exists(7)
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := repo.CountUsers()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTouchActivity(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.AddUser(7, "alice"))

	require.NoError(t, repo.TouchActivity(7))

	users, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.False(t, users[0].LastActive.IsZero())
}
