package common_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

func TestMemoryStore_Credentials(t *testing.T) {
	ctx := context.Background()
	creds := common.NewMemoryStore().Credentials()

	_, found, err := creds.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	tok := &oauth2.Token{AccessToken: "T1", RefreshToken: "R1"}
	require.NoError(t, creds.Save(ctx, tok))

	got, found, err := creds.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "T1", got.AccessToken)

	got.AccessToken = "mutated"
	again, _, _ := creds.Get(ctx)
	assert.Equal(t, "T1", again.AccessToken, "Get returns a copy")

	require.NoError(t, creds.Clear(ctx))
	_, found, err = creds.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, creds.Save(ctx, nil))
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first := common.NewFileStore(path)
	require.NoError(t, first.Credentials().Save(ctx, &oauth2.Token{AccessToken: "T1", RefreshToken: "R1", TokenType: "Bearer"}))
	require.NoError(t, first.Users().Save(ctx, &model.User{ID: "u1", Name: "Ana"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second := common.NewFileStore(path)
	tok, found, err := second.Credentials().Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "T1", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)

	user, found, err := second.Users().Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ana", user.Name)

	require.NoError(t, second.Credentials().Clear(ctx))
	third := common.NewFileStore(path)
	_, found, err = third.Credentials().Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = third.Users().Get(ctx)
	require.NoError(t, err)
	assert.True(t, found, "clearing the credential keeps the profile")
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := common.NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	_, found, err := store.Credentials().Get(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := common.NewFileStore(path).Credentials().Get(context.Background())
	var storeErr *common.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load", storeErr.Operation)
	assert.Equal(t, path, storeErr.Path)
}
