package cryptox

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
)

// ParsePrivateKeyPEM parses a PEM-encoded EC private key (PKCS#8 or SEC1)
// and returns it in ECDH form. Only NIST P-256 and P-384 keys are accepted.
func ParsePrivateKeyPEM(data []byte) (*ecdh.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key material")
	}

	var key any
	var err error

	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want an EC key", key)
	}

	priv, err := ec.ECDH()
	if err != nil {
		return nil, fmt.Errorf("convert private key to ECDH: %w", err)
	}
	return priv, nil
}

// ParsePrivateKeyHex parses a hex encoding of PEM private key bytes.
func ParsePrivateKeyHex(s string) (*ecdh.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key hex: %w", err)
	}
	return ParsePrivateKeyPEM(raw)
}

// LoadPrivateKeyFile reads and parses a PEM private key from a file.
func LoadPrivateKeyFile(path string) (*ecdh.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePublicKeyPEM parses a PEM-encoded (PKIX) EC public key in ECDH form.
func ParsePublicKeyPEM(data []byte) (*ecdh.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key material")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	ec, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want an EC key", key)
	}

	pub, err := ec.ECDH()
	if err != nil {
		return nil, fmt.Errorf("convert public key to ECDH: %w", err)
	}
	return pub, nil
}

// ParsePublicKeyHex parses a hex encoding of PEM public key bytes.
func ParsePublicKeyHex(s string) (*ecdh.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}
	return ParsePublicKeyPEM(raw)
}

// LoadPublicKeyFile reads and parses a PEM public key from a file.
func LoadPublicKeyFile(path string) (*ecdh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}
	return ParsePublicKeyPEM(data)
}
