package crypto

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyHex(t *testing.T) string {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(ethcrypto.FromECDSA(pk))
}

func TestSignPersonalRecovers(t *testing.T) {
	s, err := NewSigner("0x" + newKeyHex(t))
	require.NoError(t, err)

	msg := RequestMessage("post", "/api/offers", 1_700_000_000, []byte(`{"amount":"1"}`))
	sig, err := s.SignPersonal(msg)
	require.NoError(t, err)

	got, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := RecoverPersonal(RequestMessage("POST", "/api/offers", 1_700_000_001, nil), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestRecoverPersonalRejectsGarbage(t *testing.T) {
	_, err := RecoverPersonal([]byte("x"), "0xzz")
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = RecoverPersonal([]byte("x"), "0x"+hex.EncodeToString(make([]byte, 64)))
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestRequestMessageLayout(t *testing.T) {
	msg := string(RequestMessage("get", "/api/x", 42, nil))
	// sha256 of the empty body
	assert.Equal(t, "GET\n/api/x\n42\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", msg)
}

func TestSealOpenKey(t *testing.T) {
	keyHex := newKeyHex(t)
	want, err := NewSigner(keyHex)
	require.NoError(t, err)

	sealed, err := SealKey(keyHex, "correct horse")
	require.NoError(t, err)

	got, err := OpenKey(sealed, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, want.Address(), got.Address())

	_, err = OpenKey(sealed, "wrong")
	require.Error(t, err)

	_, err = SealKey(keyHex, "")
	require.Error(t, err)
}

func TestLoadSignerSources(t *testing.T) {
	keyHex := newKeyHex(t)
	want, err := NewSigner(keyHex)
	require.NoError(t, err)

	got, err := LoadSigner(KeyConfig{RawPrivateKey: "0x" + keyHex})
	require.NoError(t, err)
	assert.Equal(t, want.Address(), got.Address())

	sealed, err := SealKey(keyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	got, err = LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, want.Address(), got.Address())

	_, err = LoadSigner(KeyConfig{})
	require.Error(t, err)
}
