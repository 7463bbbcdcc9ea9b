package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-provider/host"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage"
)

const (
	testClients = `[{"client_id":"app","client_secret":"s3cret","client_name":"App","redirect_uris":["https://app.example.com/cb"],"trusted":true}]`
	testUsers   = `[{"username":"alice","password":"pw"},{"username":"bob","password":"pw2","user_id":"u-2"}]`
)

func TestLoad(t *testing.T) {
	t.Setenv("OAUTH2_PROVIDER_SECRET", "bar")
	t.Setenv("OAUTH2_PROVIDER_CLIENTS", testClients)
	t.Setenv("OAUTH2_PROVIDER_USERS", testUsers)
	t.Setenv("OAUTH2_PROVIDER_GRANT_TTL", "5m")
	t.Setenv("OAUTH2_PROVIDER_REDIS_ADDRS", "a:6379,b:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "legacy", cfg.Codec.Scheme)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.Storage.RedisAddrs)
	assert.Equal(t, 5*time.Minute, cfg.GrantTTL)
	assert.True(t, cfg.MetricsEnabled)
	require.Len(t, cfg.Clients, 1)
	assert.True(t, cfg.Clients[0].Trusted)
	require.Len(t, cfg.Users, 2)
	assert.Nil(t, cfg.HostUpstream())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "no secret", env: map[string]string{"OAUTH2_PROVIDER_USERS": testUsers}},
		{name: "no login", env: map[string]string{"OAUTH2_PROVIDER_SECRET": "bar"}},
		{name: "bad storage", env: map[string]string{
			"OAUTH2_PROVIDER_SECRET":  "bar",
			"OAUTH2_PROVIDER_USERS":   testUsers,
			"OAUTH2_PROVIDER_STORAGE": "etcd",
		}},
		{name: "bad clients json", env: map[string]string{
			"OAUTH2_PROVIDER_SECRET":  "bar",
			"OAUTH2_PROVIDER_USERS":   testUsers,
			"OAUTH2_PROVIDER_CLIENTS": "{",
		}},
		{name: "client without redirect", env: map[string]string{
			"OAUTH2_PROVIDER_SECRET":  "bar",
			"OAUTH2_PROVIDER_USERS":   testUsers,
			"OAUTH2_PROVIDER_CLIENTS": `[{"client_id":"app","client_secret":"x"}]`,
		}},
		{name: "bad duration", env: map[string]string{
			"OAUTH2_PROVIDER_SECRET":    "bar",
			"OAUTH2_PROVIDER_USERS":     testUsers,
			"OAUTH2_PROVIDER_GRANT_TTL": "soon",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_Upstream(t *testing.T) {
	t.Setenv("OAUTH2_PROVIDER_SECRET", "bar")
	t.Setenv("OAUTH2_PROVIDER_UPSTREAM_CLIENT_ID", "provider")
	t.Setenv("OAUTH2_PROVIDER_UPSTREAM_SCOPES", "openid,email")

	cfg, err := Load()
	require.NoError(t, err)
	up := cfg.HostUpstream()
	require.NotNil(t, up)
	assert.Equal(t, "provider", up.ClientID)
	assert.Equal(t, []string{"openid", "email"}, up.Scopes)
}

func TestLoadCodec(t *testing.T) {
	t.Setenv("OAUTH2_PROVIDER_SECRET", "bar")

	cc, err := LoadCodec()
	require.NoError(t, err)
	codec, err := cc.Codec()
	require.NoError(t, err)

	got, err := codec.Encode("test@cnn.com")
	require.NoError(t, err)
	assert.Equal(t, "XVj0tqUQTkOO5bH-77n2XA", got)
}

func TestCodecConfig_AEADKey(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	encoded := security.KeyToBase64(key)

	t.Setenv("OAUTH2_PROVIDER_CODEC", "aead")
	t.Setenv("OAUTH2_PROVIDER_AEAD_KEY", encoded)
	t.Setenv("OAUTH2_PROVIDER_USERS", testUsers)

	cfg, err := Load()
	require.NoError(t, err, "a key replaces the secret")
	codec, err := cfg.Codec.Codec()
	require.NoError(t, err)

	direct, err := security.NewAEADCodec(key)
	require.NoError(t, err)
	enc, err := codec.Encode("ABC123")
	require.NoError(t, err)
	got, err := direct.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", got)

	_, err = CodecConfig{Scheme: "legacy", Key: encoded}.Codec()
	assert.Error(t, err, "key with the legacy scheme")
	_, err = CodecConfig{Scheme: "aead", Key: "c2hvcnQ="}.Codec()
	assert.Error(t, err, "short key")
}

func TestStorageClients(t *testing.T) {
	cfg := &Config{Clients: []Client{{ID: "app", Secret: "s3cret", RedirectURIs: []string{"https://app.example.com/cb"}}}}

	clients, err := cfg.StorageClients(storage.MinSecretCost)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.NoError(t, storage.CompareClientSecret(clients[0], "s3cret"))
	assert.Error(t, storage.CompareClientSecret(clients[0], "wrong"))
}

func TestAuthenticator(t *testing.T) {
	cfg := &Config{Users: []User{
		{Username: "alice", Password: "pw"},
		{Username: "bob", Password: "pw2", UserID: "u-2"},
	}}
	auth, err := cfg.Authenticator(bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()

	id, err := auth(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	id, err = auth(ctx, "bob", "pw2")
	require.NoError(t, err)
	assert.Equal(t, "u-2", id)

	_, err = auth(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, host.ErrBadCredentials)
	_, err = auth(ctx, "mallory", "unused")
	assert.ErrorIs(t, err, host.ErrBadCredentials)

	none, err := (&Config{}).Authenticator(bcrypt.MinCost)
	require.NoError(t, err)
	assert.Nil(t, none)
}
