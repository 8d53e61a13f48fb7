package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	blobPrefix       = "v1:"
	keyLength        = 32
	pbkdf2Iterations = 100_000
)

// Decrypter turns an encrypted provider credential blob into key/value credentials
type Decrypter interface {
	Decrypt(blob string) (map[string]string, error)
}

// AESCipher encrypts and decrypts provider credentials with AES-256-GCM.
// Blobs have the form "v1:" + base64(nonce || ciphertext).
type AESCipher struct {
	aead cipher.AEAD
}

// NewAESCipher derives the key from secret and salt with PBKDF2-SHA256
func NewAESCipher(secret, salt string) (*AESCipher, error) {
	if secret == "" {
		return nil, errors.New("encryption secret cannot be empty")
	}

	key := pbkdf2.Key([]byte(secret), []byte(salt), pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESCipher{aead: aead}, nil
}

// Encrypt serialises credentials to JSON and seals them
func (c *AESCipher) Encrypt(credentials map[string]string) (string, error) {
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return blobPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Non-string JSON values are
// rendered with fmt so that numeric ports survive.
func (c *AESCipher) Decrypt(blob string) (map[string]string, error) {
	if !strings.HasPrefix(blob, blobPrefix) {
		return nil, invalid("unsupported credential format", nil)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, blobPrefix))
	if err != nil {
		return nil, invalid("credential blob is not valid base64", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, invalid("credential blob is truncated", nil)
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, invalid("credential blob failed authentication", err)
	}

	var values map[string]any
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, invalid("credential payload is not a JSON object", err)
	}

	credentials := make(map[string]string, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			credentials[k] = val
		case nil:
			credentials[k] = ""
		default:
			credentials[k] = fmt.Sprint(val)
		}
	}
	return credentials, nil
}

func invalid(message string, err error) error {
	return apperrors.NewConfigurationError(apperrors.CodeCredentialsInvalid, message, err)
}
