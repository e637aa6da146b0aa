package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dshauth/token"
)

func newDevice(t *testing.T, clientID string) (NewDevice, string) {
	t.Helper()
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	hash, err := HashAPIKey(key)
	require.NoError(t, err)
	return NewDevice{
		ClientID:           clientID,
		Name:               "sensor " + clientID,
		APIKeyHash:         hash,
		APIKeyPrefix:       APIKeyPrefix(key),
		RateLimitPerMinute: 30,
		Permissions: []token.TopicPermission{
			token.NewTopicPermission(token.Subscribe, "weather", "/tt", "/weather/#"),
			token.NewTopicPermission(token.Publish, "weather", "/tt", "/weather/"+clientID),
		},
	}, key
}

// exerciseRegistry runs the same scenario against every adapter.
func exerciseRegistry(t *testing.T, db DB) {
	require.NoError(t, db.Ping())

	nd, key := newDevice(t, "device-1")
	created, err := db.CreateDevice(nd)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.True(t, created.Active)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = db.CreateDevice(nd)
	assert.ErrorIs(t, err, ErrDuplicateClientID)

	bad, _ := newDevice(t, "device 1")
	_, err = db.CreateDevice(bad)
	var invalid *token.InvalidClientIDError
	assert.True(t, errors.As(err, &invalid))

	got, err := db.GetDeviceByClientID("device-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, nd.Permissions, got.Permissions)
	assert.Equal(t, 30, got.RateLimitPerMinute)

	missing, err := db.GetDeviceByClientID("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	authed, err := Authenticate(db, key)
	require.NoError(t, err)
	require.NotNil(t, authed)
	assert.Equal(t, "device-1", authed.ClientID)

	nobody, err := Authenticate(db, key[:8]+"0000")
	require.NoError(t, err)
	assert.Nil(t, nobody)

	second, _ := newDevice(t, "device-2")
	second.Permissions = nil
	_, err = db.CreateDevice(second)
	require.NoError(t, err)

	all, err := db.ListDevices()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "device-1", all[0].ClientID)
	assert.Empty(t, all[1].Permissions)

	require.NoError(t, db.DeactivateDevice("device-1"))
	authed, err = Authenticate(db, key)
	require.NoError(t, err)
	assert.Nil(t, authed, "deactivated devices cannot authenticate")

	assert.ErrorIs(t, db.DeactivateDevice("nobody"), ErrNotFound)
}

func TestMemoryDB(t *testing.T) {
	db := NewMemoryDB()
	require.NoError(t, db.Init())
	exerciseRegistry(t, db)
}

func TestSQLiteDB(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "devices.db"))
	require.NoError(t, err)
	defer db.Close()
	exerciseRegistry(t, db)
}

func TestMemoryDBReturnsCopies(t *testing.T) {
	db := NewMemoryDB()
	nd, _ := newDevice(t, "device-1")
	d, err := db.CreateDevice(nd)
	require.NoError(t, err)

	d.Permissions[0] = token.NewTopicPermission(token.Publish, "x", "/tt", "#")
	got, err := db.GetDeviceByClientID("device-1")
	require.NoError(t, err)
	assert.Equal(t, nd.Permissions[0], got.Permissions[0])
}

func TestAPIKeyPrefix(t *testing.T) {
	assert.Equal(t, "abcdefgh", APIKeyPrefix("abcdefghijkl"))
	assert.Equal(t, "abc", APIKeyPrefix("abc"))

	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)
}
