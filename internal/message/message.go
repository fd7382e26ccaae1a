// Package message defines the signed message envelope and the typed
// descriptors of every supported (interface, method) pair.
//
// A message is immutable once signed: the raw descriptor JSON is carried
// verbatim so its content identifier stays stable across store and replay.
package message

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/othala/internal/cid"
)

// Interface is a message interface name.
type Interface string

// Method is a message method name.
type Method string

// The closed set of interfaces and methods this node dispatches on.
const (
	InterfaceRecords   Interface = "Records"
	InterfaceProtocols Interface = "Protocols"

	MethodWrite     Method = "Write"
	MethodQuery     Method = "Query"
	MethodDelete    Method = "Delete"
	MethodConfigure Method = "Configure"
)

// TimeLayout is the wire format of dateCreated: fixed-width UTC RFC3339 with
// nanosecond precision, so lexicographic string order equals time order and
// exact-timestamp ties stay rare enough for the content-id tie-break.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in the wire timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a wire timestamp, rejecting any non-canonical form.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("message: invalid dateCreated %q: %w", s, err)
	}
	return t, nil
}

// Authorization is the detached proof over a descriptor.
type Authorization struct {
	Signer    string `json:"signer"`    // DID of the signing identity
	Signature string `json:"signature"` // hex Ed25519 signature over the canonical descriptor
}

// Envelope is a message as received on the wire: the raw descriptor plus its
// authorization. Descriptor bytes are never re-encoded after signing.
type Envelope struct {
	Descriptor    json.RawMessage `json:"descriptor"`
	Authorization Authorization   `json:"authorization"`
}

// Header holds the descriptor fields common to every message kind.
type Header struct {
	Interface   Interface `json:"interface"`
	Method      Method    `json:"method"`
	DateCreated string    `json:"dateCreated"`
}

// Decode unmarshals a raw message and checks the envelope is structurally
// complete. Descriptor-level validation happens per kind at parse time.
func Decode(raw json.RawMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("message: decode envelope: %w", err)
	}
	if len(env.Descriptor) == 0 {
		return nil, fmt.Errorf("message: descriptor is missing")
	}
	if env.Authorization.Signer == "" || env.Authorization.Signature == "" {
		return nil, fmt.Errorf("message: authorization is incomplete")
	}
	return &env, nil
}

// ParseHeader extracts the common descriptor fields.
func (e *Envelope) ParseHeader() (Header, error) {
	var h Header
	if err := json.Unmarshal(e.Descriptor, &h); err != nil {
		return Header{}, fmt.Errorf("message: decode header: %w", err)
	}
	return h, nil
}

// CID returns the content identifier of this message.
func (e *Envelope) CID() (string, error) {
	auth, err := json.Marshal(e.Authorization)
	if err != nil {
		return "", fmt.Errorf("message: encode authorization: %w", err)
	}
	return cid.Compute(e.Descriptor, auth)
}

// signable returns the bytes covered by the signature: the canonical
// encoding of the descriptor.
func (e *Envelope) signable() ([]byte, error) {
	return cid.Canonical(e.Descriptor)
}

// Sign attaches an authorization produced with the given identity.
func (e *Envelope) Sign(signer string, priv ed25519.PrivateKey) error {
	msg, err := e.signable()
	if err != nil {
		return err
	}
	e.Authorization = Authorization{
		Signer:    signer,
		Signature: hex.EncodeToString(ed25519.Sign(priv, msg)),
	}
	return nil
}

// Verify checks the authorization signature against the given public key.
func (e *Envelope) Verify(pub ed25519.PublicKey) error {
	sig, err := hex.DecodeString(e.Authorization.Signature)
	if err != nil {
		return fmt.Errorf("message: invalid signature hex: %w", err)
	}
	msg, err := e.signable()
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, msg, sig) {
		return fmt.Errorf("message: signature verification failed")
	}
	return nil
}
