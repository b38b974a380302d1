// Package cryptox implements end-to-end encryption of result payloads for a
// single remote recipient. A per-recipient symmetric key is derived once via
// ECDH key agreement (NIST P-256 or P-384) followed by HKDF-SHA256, and
// payloads are sealed with AES-256-GCM. The 12-byte nonce is prepended to
// the ciphertext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/fedanode/result-service/internal/common"
)

const (
	nonceSize = 12
	keySize   = 32
)

// hkdfInfo domain-separates keys derived by this service from any other use
// of the same ECDH pair.
var hkdfInfo = []byte("result-file-key-v1")

// DeriveSharedKey performs ECDH between the local private key and the
// recipient's public key and expands the raw secret into a 32-byte AES key
// with HKDF-SHA256. Both keys must be on the same curve.
func DeriveSharedKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ECDH key agreement: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("expand shared key: %w", err)
	}
	return key, nil
}

// Engine seals and opens result payloads for one recipient. The shared key
// is derived once at construction and is immutable afterwards, so an Engine
// is safe for concurrent use.
type Engine struct {
	aead cipher.AEAD
}

// NewEngine derives the recipient key and prepares the AEAD. Malformed or
// mismatched key material surfaces here, which callers treat as fatal at
// process start.
func NewEngine(priv *ecdh.PrivateKey, recipient *ecdh.PublicKey) (*Engine, error) {
	key, err := DeriveSharedKey(priv, recipient)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init GCM: %w", err)
	}

	return &Engine{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. associatedData is
// authenticated but not encrypted; passing the owning file id and analysis
// id prevents a ciphertext from being replayed against a different job.
func (e *Engine) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, nonceSize, nonceSize+len(plaintext)+e.aead.Overhead())
	copy(out, nonce)

	return e.aead.Seal(out, nonce, plaintext, associatedData), nil
}

// Decrypt opens data produced by Encrypt. Any tampering with the nonce, the
// ciphertext, the tag or the associated data yields common.ErrIntegrity.
func (e *Engine) Decrypt(data, associatedData []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", common.ErrIntegrity)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIntegrity, err)
	}
	return plaintext, nil
}
