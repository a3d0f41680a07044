package config

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecretFromArgument(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	hexSecret := hex.EncodeToString(raw)

	secret, err := ParseSecret(hexSecret)
	require.NoError(t, err)
	assert.Equal(t, raw, secret[:])
}

func TestParseSecretFromEnv(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(32 - i)
	}
	t.Setenv(secretEnvVar, hex.EncodeToString(raw))

	secret, err := ParseSecret("")
	require.NoError(t, err)
	assert.Equal(t, raw, secret[:])
}

func TestParseSecretRejectsMissing(t *testing.T) {
	_, err := ParseSecret("")
	assert.Error(t, err)
}

func TestParseSecretRejectsWrongLength(t *testing.T) {
	_, err := ParseSecret(hex.EncodeToString([]byte("too short")))
	assert.Error(t, err)
}

func TestParseSecretRejectsInvalidHex(t *testing.T) {
	_, err := ParseSecret("not-hex")
	assert.Error(t, err)
}

func TestApplyEnvLeavesFlagValuesAlone(t *testing.T) {
	t.Setenv("TINYCLOUD_METADB_PATH", "/env/path.db")
	cfg := ApplyEnv(Config{MetaDBPath: "/flag/path.db"})
	assert.Equal(t, "/flag/path.db", cfg.MetaDBPath)
}

func TestApplyEnvFillsZeroValues(t *testing.T) {
	t.Setenv("TINYCLOUD_METADB_PATH", "/env/path.db")
	cfg := ApplyEnv(Config{})
	assert.Equal(t, "/env/path.db", cfg.MetaDBPath)
}

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.ListenAddr)
	assert.NotEmpty(t, cfg.MetaDBPath)
}
