package repo

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Ошибки шифрования credentials.
var (
	// ErrInvalidKey — ключ шифрования не 32 байта.
	ErrInvalidKey = errors.New("credential key must be 32 bytes (hex or base64)")

	// ErrCiphertextTooShort — сохранённое значение повреждено.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Sealer шифрует значения credentials (XChaCha20-Poly1305).
//
// Формат хранения: nonce (24 байта) || ciphertext.
// Имя пользователя и секрета передаются как associated data, поэтому
// значение нельзя переставить в чужую строку таблицы.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создаёт Sealer из 32-байтного ключа.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// ParseKey разбирает ключ в hex или base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	return nil, ErrInvalidKey
}

// Seal шифрует plaintext.
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open расшифровывает значение, созданное Seal.
func (s *Sealer) Open(sealed, ad []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}
	return plaintext, nil
}
