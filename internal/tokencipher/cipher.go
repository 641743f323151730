// Package tokencipher encrypts bearer tokens before they are handed to
// clients as cookies. The format matches the provider-agnostic session
// contract: AES-256-CBC with a fresh 16-byte IV per encryption, both IV and
// ciphertext hex encoded.
package tokencipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var (
	// ErrDecryptFailed is returned for any malformed or tampered token.
	// Callers treat it as a hard authentication failure.
	ErrDecryptFailed = errors.New("tokencipher: decrypt failed")
	// ErrEmptyToken is returned when there is nothing to encrypt.
	ErrEmptyToken = errors.New("tokencipher: empty token")
)

// EncryptedToken pairs a hex ciphertext with the hex IV used to produce it.
type EncryptedToken struct {
	Data string
	IV   string
}

// Cipher performs symmetric token encryption with a fixed 32-byte key.
type Cipher struct {
	key []byte
}

// New derives a Cipher from the configured secret. A 64-character hex string
// is used directly as the 32-byte key; anything else is stretched to 32
// bytes with HKDF-SHA256 so deployments can configure a passphrase instead
// of raw key material.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("tokencipher: empty secret")
	}

	if len(secret) == hex.EncodedLen(keySize) {
		if key, err := hex.DecodeString(secret); err == nil {
			return &Cipher{key: key}, nil
		}
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("quickmeet token cipher v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("tokencipher: key derivation failed: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals the token with a freshly generated IV.
func (c *Cipher) Encrypt(token string) (EncryptedToken, error) {
	if c == nil {
		return EncryptedToken{}, errors.New("tokencipher: nil cipher")
	}
	if token == "" {
		return EncryptedToken{}, ErrEmptyToken
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return EncryptedToken{}, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedToken{}, err
	}

	plaintext := pad([]byte(token), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return EncryptedToken{
		Data: hex.EncodeToString(ciphertext),
		IV:   hex.EncodeToString(iv),
	}, nil
}

// Decrypt reverses Encrypt. Every failure mode collapses into
// ErrDecryptFailed; a caller cannot recover a broken token.
func (c *Cipher) Decrypt(data, iv string) (string, error) {
	if c == nil {
		return "", ErrDecryptFailed
	}
	if data == "" || iv == "" {
		return "", ErrDecryptFailed
	}

	rawIV, err := hex.DecodeString(iv)
	if err != nil || len(rawIV) != aes.BlockSize {
		return "", ErrDecryptFailed
	}
	ciphertext, err := hex.DecodeString(data)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrDecryptFailed
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, rawIV).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := unpad(plaintext, aes.BlockSize)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(unpadded), nil
}

// pad applies PKCS#7 padding.
func pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

// unpad strips PKCS#7 padding and reports whether it was well formed.
func unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, false
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, false
		}
	}
	return data[:len(data)-padding], true
}
