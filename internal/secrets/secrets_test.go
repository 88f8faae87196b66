package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := Encrypt("sk-live-1234", "correct horse")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "sk-live-1234")

	got, err := Decrypt(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-1234", got)

	_, err = Decrypt(blob, "wrong")
	assert.ErrorContains(t, err, "wrong password")
}

func TestEncryptRejectsEmptyInput(t *testing.T) {
	_, err := Encrypt("s", "")
	assert.Error(t, err)
	_, err = Encrypt("", "p")
	assert.Error(t, err)
}

func TestDecryptRejectsBadBlobs(t *testing.T) {
	_, err := Decrypt([]byte(`{"version":2}`), "p")
	assert.ErrorContains(t, err, "unsupported version 2")

	_, err = Decrypt([]byte(`not json`), "p")
	assert.Error(t, err)

	_, err = Decrypt([]byte(`{"version":1,"salt":"!!"}`), "p")
	assert.ErrorContains(t, err, "decoding salt")
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(KeyConfig{RawSecret: " raw ", EncryptedPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	_, err = LoadSecret(KeyConfig{})
	assert.ErrorIs(t, err, ErrNoSource)

	blob, err := Encrypt("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(KeyConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(KeyConfig{EncryptedPath: filepath.Join(t.TempDir(), "missing.json"), Password: "pw"})
	assert.ErrorContains(t, err, "reading encrypted secret")
}
