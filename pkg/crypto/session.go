// Package crypto implements the per-response session cipher. Every call to
// Seal draws a fresh AES-256 key and GCM nonce; nothing is retained after the
// call returns.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"bookgate/pkg/models"
)

const (
	// KeySize is the AES-256 key length in bytes
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes
	NonceSize = 12
	// TokenSize is the decoded length of a key token (key followed by nonce)
	TokenSize = KeySize + NonceSize
	// TokenHeader carries the key token on encrypted responses
	TokenHeader = "X-Encryption-Token"
	// EncryptedHeader marks a response body as ciphertext
	EncryptedHeader = "X-Content-Encrypted"
	// TrialHeader tells the client whether the body is a trial
	TrialHeader = "X-Trial-Mode"
)

var (
	ErrInvalidToken  = errors.New("crypto: malformed key token")
	ErrDecryptFailed = errors.New("crypto: ciphertext failed authentication")
)

// randReader is swapped in tests to exercise entropy failures
var randReader io.Reader = rand.Reader

// Sealed is the result of encrypting one response body
type Sealed struct {
	Ciphertext []byte
	// Token is the standard base64 encoding of key||nonce
	Token string
}

// Seal encrypts plaintext under a freshly generated key and nonce
func Seal(plaintext []byte) (*Sealed, error) {
	material := make([]byte, TokenSize)
	if _, err := io.ReadFull(randReader, material); err != nil {
		return nil, encryptionError("failed to generate session key", err)
	}
	key, nonce := material[:KeySize], material[KeySize:]

	aead, err := newGCM(key)
	if err != nil {
		return nil, encryptionError("failed to initialize cipher", err)
	}

	return &Sealed{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Token:      base64.StdEncoding.EncodeToString(material),
	}, nil
}

// ParseToken decodes a key token into its key and nonce
func ParseToken(token string) (key, nonce []byte, err error) {
	material, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, nil, &models.Error{
			Code:    models.ErrCodeInvalidToken,
			Message: "key token is not valid base64",
			Err:     fmt.Errorf("%w: %w", ErrInvalidToken, err),
		}
	}
	if len(material) != TokenSize {
		return nil, nil, &models.Error{
			Code:    models.ErrCodeInvalidToken,
			Message: fmt.Sprintf("key token decodes to %d bytes, want %d", len(material), TokenSize),
			Err:     ErrInvalidToken,
		}
	}
	return material[:KeySize], material[KeySize:], nil
}

// Open reverses Seal given the ciphertext and the token sent alongside it
func Open(ciphertext []byte, token string) ([]byte, error) {
	key, nonce, err := ParseToken(token)
	if err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, &models.Error{Code: models.ErrCodeDecryptionFailed, Message: "failed to initialize cipher", Err: err}
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeDecryptionFailed,
			Message: "ciphertext does not match key token",
			Err:     ErrDecryptFailed,
		}
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encryptionError(message string, err error) error {
	return &models.Error{
		Code:    models.ErrCodeEncryptionFailed,
		Message: message,
		Err:     fmt.Errorf("%w: %w", models.ErrEncryptionFailed, err),
	}
}
