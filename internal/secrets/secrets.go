// Package secrets stores the broker API secret encrypted at rest with a
// password (PBKDF2-HMAC-SHA256 key derivation, AES-256-GCM).
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// ErrNoSource is returned by LoadSecret when neither a raw secret nor an
// encrypted file is configured.
var ErrNoSource = errors.New("secrets: no secret source configured")

// sealed is the on-disk format. Binary fields are base64 standard encoding.
type sealed struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where LoadSecret finds the secret.
type KeyConfig struct {
	// RawSecret wins when set.
	RawSecret string

	// EncryptedPath is a file produced by Encrypt, opened with Password.
	EncryptedPath string
	Password      string
}

func gcmFor(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals secret under password and returns the JSON file contents.
func Encrypt(secret, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("secrets: password must not be empty")
	}
	if secret == "" {
		return nil, errors.New("secrets: secret must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secrets: generating salt: %w", err)
	}
	gcm, err := gcmFor(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: generating nonce: %w", err)
	}

	return json.MarshalIndent(sealed{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(secret), nil)),
	}, "", "  ")
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(blob []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("secrets: password must not be empty")
	}

	var s sealed
	if err := json.Unmarshal(blob, &s); err != nil {
		return "", fmt.Errorf("secrets: parsing encrypted secret: %w", err)
	}
	if s.Version != currentVersion {
		return "", fmt.Errorf("secrets: unsupported version %d", s.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(s.Salt)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding ciphertext: %w", err)
	}

	gcm, err := gcmFor(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("secrets: nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decryption failed (wrong password?): %w", err)
	}
	return string(plaintext), nil
}

// LoadSecret resolves the secret: RawSecret first, then the encrypted file.
func LoadSecret(cfg KeyConfig) (string, error) {
	if s := strings.TrimSpace(cfg.RawSecret); s != "" {
		return s, nil
	}
	if cfg.EncryptedPath != "" {
		data, err := os.ReadFile(cfg.EncryptedPath)
		if err != nil {
			return "", fmt.Errorf("secrets: reading encrypted secret: %w", err)
		}
		return Decrypt(data, cfg.Password)
	}
	return "", ErrNoSource
}
