// Package identity implements did:key style identities over Ed25519.
//
// A DID is "did:key:z" followed by the base58btc encoding of the multicodec
// Ed25519 prefix and the raw public key. Resolution of such a DID needs no
// network round trip; the key material is embedded in the identifier itself.
package identity

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

const keyPrefix = "did:key:z"

// ed25519Multicodec is the varint multicodec code for Ed25519 public keys.
var ed25519Multicodec = []byte{0xed, 0x01}

// FromPublicKey derives the DID of an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(ed25519Multicodec)+len(pub))
	buf = append(buf, ed25519Multicodec...)
	buf = append(buf, pub...)
	return keyPrefix + base58.Encode(buf)
}

// PublicKey extracts the Ed25519 public key embedded in a did:key identifier.
func PublicKey(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, keyPrefix) {
		return nil, fmt.Errorf("identity: not a did:key identifier: %s", did)
	}
	raw, err := base58.Decode(strings.TrimPrefix(did, keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("identity: decode %s: %w", did, err)
	}
	if len(raw) != len(ed25519Multicodec)+ed25519.PublicKeySize ||
		raw[0] != ed25519Multicodec[0] || raw[1] != ed25519Multicodec[1] {
		return nil, fmt.Errorf("identity: unsupported key encoding in %s", did)
	}
	return ed25519.PublicKey(raw[len(ed25519Multicodec):]), nil
}

// LoadOrGenerate loads an Ed25519 keypair from path, or generates and saves a
// new one if the file does not exist. The file holds the 64-byte private key,
// which contains the public key in its last 32 bytes.
func LoadOrGenerate(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, nil, fmt.Errorf("identity: invalid key file: expected %d bytes, got %d",
				ed25519.PrivateKeySize, len(data))
		}
		priv := ed25519.PrivateKey(data)
		return priv.Public().(ed25519.PublicKey), priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("identity: read key file: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return nil, nil, fmt.Errorf("identity: write key file: %w", err)
	}
	return pub, priv, nil
}
