package cryptox

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedanode/result-service/internal/common"
)

func newKeyPair(t *testing.T, curve ecdh.Curve) (*ecdh.PrivateKey, *ecdh.PublicKey) {
	t.Helper()
	priv, err := curve.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, priv.PublicKey()
}

func newEngines(t *testing.T, curve ecdh.Curve) (*Engine, *Engine) {
	t.Helper()
	nodePriv, nodePub := newKeyPair(t, curve)
	hubPriv, hubPub := newKeyPair(t, curve)

	sender, err := NewEngine(nodePriv, hubPub)
	require.NoError(t, err)
	receiver, err := NewEngine(hubPriv, nodePub)
	require.NoError(t, err)
	return sender, receiver
}

func TestDeriveSharedKey_BothSidesAgree(t *testing.T) {
	for _, curve := range []ecdh.Curve{ecdh.P256(), ecdh.P384()} {
		aPriv, aPub := newKeyPair(t, curve)
		bPriv, bPub := newKeyPair(t, curve)

		k1, err := DeriveSharedKey(aPriv, bPub)
		require.NoError(t, err)
		k2, err := DeriveSharedKey(bPriv, aPub)
		require.NoError(t, err)

		assert.Equal(t, k1, k2)
		assert.Len(t, k1, 32)
	}
}

func TestDeriveSharedKey_CurveMismatch(t *testing.T) {
	aPriv, _ := newKeyPair(t, ecdh.P256())
	_, bPub := newKeyPair(t, ecdh.P384())

	_, err := DeriveSharedKey(aPriv, bPub)
	assert.Error(t, err)
}

func TestEngine_RoundTrip(t *testing.T) {
	sender, receiver := newEngines(t, ecdh.P256())
	aad := []byte("41f9c9e2|analysis-1")

	sizes := []int{1, 15, 16, 1024, 5 * 1024 * 1024}
	for _, n := range sizes {
		plaintext := bytes.Repeat([]byte{0xA5}, n)

		sealed, err := sender.Encrypt(plaintext, aad)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)

		opened, err := receiver.Decrypt(sealed, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestEngine_EmptyPlaintextRoundTrips(t *testing.T) {
	// Zero-length payloads are rejected at ingress, but the engine itself
	// must still be total.
	sender, receiver := newEngines(t, ecdh.P256())

	sealed, err := sender.Encrypt(nil, []byte("aad"))
	require.NoError(t, err)

	opened, err := receiver.Decrypt(sealed, []byte("aad"))
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestEngine_TamperingYieldsIntegrityError(t *testing.T) {
	sender, receiver := newEngines(t, ecdh.P384())
	aad := []byte("id|analysis")

	sealed, err := sender.Encrypt([]byte("federated model weights"), aad)
	require.NoError(t, err)

	// flip one byte at every position: nonce, ciphertext and tag alike
	for i := range sealed {
		tampered := bytes.Clone(sealed)
		tampered[i] ^= 0x01

		_, err := receiver.Decrypt(tampered, aad)
		assert.ErrorIs(t, err, common.ErrIntegrity, "byte %d", i)
	}
}

func TestEngine_WrongAssociatedData(t *testing.T) {
	sender, receiver := newEngines(t, ecdh.P256())

	sealed, err := sender.Encrypt([]byte("payload"), []byte("file-a|analysis-1"))
	require.NoError(t, err)

	_, err = receiver.Decrypt(sealed, []byte("file-b|analysis-1"))
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestEngine_TruncatedCiphertext(t *testing.T) {
	_, receiver := newEngines(t, ecdh.P256())

	_, err := receiver.Decrypt([]byte{0x01, 0x02, 0x03}, nil)
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestEngine_NoncesAreUnique(t *testing.T) {
	sender, _ := newEngines(t, ecdh.P256())

	a, err := sender.Encrypt([]byte("x"), nil)
	require.NoError(t, err)
	b, err := sender.Encrypt([]byte("x"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a[:12], b[:12])
}

func marshalPrivatePEM(t *testing.T, curve elliptic.Curve) ([]byte, *ecdh.PublicKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	pub, err := key.PublicKey.ECDH()
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), pub
}

func TestParsePrivateKeyPEM(t *testing.T) {
	pemBytes, want := marshalPrivatePEM(t, elliptic.P256())

	priv, err := ParsePrivateKeyPEM(pemBytes)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey().Equal(want))
}

func TestParsePrivateKeyHex(t *testing.T) {
	pemBytes, want := marshalPrivatePEM(t, elliptic.P384())

	priv, err := ParsePrivateKeyHex(hex.EncodeToString(pemBytes))
	require.NoError(t, err)
	assert.True(t, priv.PublicKey().Equal(want))
}

func TestLoadPrivateKeyFile(t *testing.T) {
	pemBytes, want := marshalPrivatePEM(t, elliptic.P256())

	path := filepath.Join(t.TempDir(), "node.pem")
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	priv, err := LoadPrivateKeyFile(path)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey().Equal(want))
}

func TestParsePublicKeyPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	pub, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)

	want, err := key.PublicKey.ECDH()
	require.NoError(t, err)
	assert.True(t, pub.Equal(want))
}

func TestParseKeys_Malformed(t *testing.T) {
	_, err := ParsePrivateKeyPEM([]byte("not a key"))
	assert.Error(t, err)

	_, err = ParsePrivateKeyHex("zz")
	assert.Error(t, err)

	_, err = ParsePublicKeyPEM([]byte("-----BEGIN PUBLIC KEY-----\naaaa\n-----END PUBLIC KEY-----"))
	assert.Error(t, err)

	_, err = LoadPrivateKeyFile(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}
