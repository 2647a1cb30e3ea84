package transport

import (
	"crypto/sha1"

	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/crypto/pbkdf2"
)

// kdfSalt is the fixed PBKDF2 salt used when expanding the rendezvous
// pre-shared value into a KCP block-cipher key.
const kdfSalt = "aerodrop-kcp"

// cryptMethod maps a cipher name to its constructor and required key size.
type cryptMethod struct {
	keySize int
	build   func(key []byte) (kcp.BlockCrypt, error)
}

var cryptMethods = map[string]cryptMethod{
	"none":        {0, func(key []byte) (kcp.BlockCrypt, error) { return nil, nil }},
	"aes":         {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewAESBlockCrypt(key) }},
	"aes-128":     {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewAESBlockCrypt(key) }},
	"aes-128-gcm": {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewAESGCMCrypt(key) }},
	"salsa20":     {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewSalsa20BlockCrypt(key) }},
}

// DeriveKey expands a rendezvous pre-shared value into a 32-byte key via
// PBKDF2.
func DeriveKey(preShared string) []byte {
	return pbkdf2.Key([]byte(preShared), []byte(kdfSalt), 4096, 32, sha1.New)
}

// SelectBlockCrypt translates a human readable cipher name into the
// concrete kcp.BlockCrypt. Unknown names fall back to "aes". Returns the
// effective cipher name so callers can log the final choice.
func SelectBlockCrypt(method string, key []byte) (kcp.BlockCrypt, string) {
	m, ok := cryptMethods[method]
	if !ok {
		m, method = cryptMethods["aes"], "aes"
	}
	k := key
	if m.keySize > 0 && len(k) >= m.keySize {
		k = k[:m.keySize]
	}
	block, err := m.build(k)
	if err != nil {
		block, _ = cryptMethods["aes"].build(key)
		return block, "aes"
	}
	return block, method
}
