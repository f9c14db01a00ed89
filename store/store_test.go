package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/homobie/portal-go/store"
	"github.com/stretchr/testify/require"
)

const (
	testAccessToken  = "eyJ.access.token"
	testRefreshToken = "refresh-token-1"
)

func testUser() *store.User {
	return &store.User{
		UserID:    "u1",
		Email:     "a@b.com",
		FirstName: "A",
		LastName:  "B",
		Role:      "builder",
	}
}

func newFileStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	return fs, dir
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs, dir := newFileStore(t)

	saved := &store.Credentials{
		AccessToken:  testAccessToken,
		RefreshToken: testRefreshToken,
		User:         testUser(),
	}
	require.NoError(t, fs.Save(saved))

	// A fresh store over the same directory simulates a restart.
	reopened, err := store.NewFileStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.Load()
	require.NoError(t, err)
	require.Equal(t, saved.AccessToken, loaded.AccessToken)
	require.Equal(t, saved.RefreshToken, loaded.RefreshToken)
	require.Equal(t, saved.User, loaded.User)
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	fs, _ := newFileStore(t)

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.True(t, loaded.Empty())
}

func TestFileStoreRoleLowerCased(t *testing.T) {
	fs, _ := newFileStore(t)

	user := testUser()
	user.Role = "BUILDER"
	require.NoError(t, fs.Save(&store.Credentials{
		AccessToken:  testAccessToken,
		RefreshToken: testRefreshToken,
		User:         user,
	}))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, "builder", loaded.User.Role)
}

func TestFileStoreCorruptedUserBlob(t *testing.T) {
	fs, dir := newFileStore(t)

	// Valid document, user field of the wrong shape.
	doc := map[string]any{
		"schemaVersion": 1,
		"accessToken":   testAccessToken,
		"refreshToken":  testRefreshToken,
		"user":          "not-an-object",
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), raw, 0o600))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Nil(t, loaded.User)
	require.Equal(t, testAccessToken, loaded.AccessToken)
	require.Equal(t, testRefreshToken, loaded.RefreshToken)

	// The corrupted field was dropped on disk too.
	reloaded, err := fs.Load()
	require.NoError(t, err)
	require.Nil(t, reloaded.User)
	require.Equal(t, testAccessToken, reloaded.AccessToken)
}

func TestFileStoreCorruptedDocument(t *testing.T) {
	fs, dir := newFileStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte("{garbage"), 0o600))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.True(t, loaded.Empty())
}

func TestFileStoreLegacyMigration(t *testing.T) {
	fs, dir := newFileStore(t)

	legacy := map[string]any{
		"authToken":    testAccessToken,
		"refreshToken": testRefreshToken,
		"user": map[string]any{
			"email":     "a@b.com",
			"firstName": "A",
			"lastName":  "B",
			"role":      "BROKER",
		},
		"userId": "u9",
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	legacyPath := filepath.Join(dir, "auth_keys.json")
	require.NoError(t, os.WriteFile(legacyPath, raw, 0o600))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, testAccessToken, loaded.AccessToken)
	require.Equal(t, testRefreshToken, loaded.RefreshToken)
	require.NotNil(t, loaded.User)
	require.Equal(t, "u9", loaded.User.UserID)
	require.Equal(t, "broker", loaded.User.Role)

	// Legacy file deleted, canonical file written.
	_, err = os.Stat(legacyPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "session.json"))
	require.NoError(t, err)

	reloaded, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, loaded, reloaded)
}

func TestFileStoreLegacyTokenFallback(t *testing.T) {
	fs, dir := newFileStore(t)

	raw, err := json.Marshal(map[string]any{"token": testAccessToken})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth_keys.json"), raw, 0o600))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, testAccessToken, loaded.AccessToken)
}

func TestFileStoreClearIdempotent(t *testing.T) {
	fs, _ := newFileStore(t)

	require.NoError(t, fs.Save(&store.Credentials{AccessToken: testAccessToken, RefreshToken: testRefreshToken, User: testUser()}))
	require.NoError(t, fs.Clear())
	require.NoError(t, fs.Clear())

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.True(t, loaded.Empty())
}

func TestMemoryStoreIsolation(t *testing.T) {
	ms := store.NewMemory()

	user := testUser()
	require.NoError(t, ms.Save(&store.Credentials{AccessToken: testAccessToken, RefreshToken: testRefreshToken, User: user}))

	// Mutating the caller's copy must not leak into the store.
	user.Role = "admin"

	loaded, err := ms.Load()
	require.NoError(t, err)
	require.Equal(t, "builder", loaded.User.Role)

	loaded.User.Role = "admin"
	again, err := ms.Load()
	require.NoError(t, err)
	require.Equal(t, "builder", again.User.Role)
}
