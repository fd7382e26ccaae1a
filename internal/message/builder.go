package message

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/othala/internal/identity"
)

// Signer produces authorized messages for one identity.
type Signer struct {
	DID string
	key ed25519.PrivateKey
}

// NewSigner derives a Signer (and its DID) from a private key.
func NewSigner(priv ed25519.PrivateKey) Signer {
	return Signer{
		DID: identity.FromPublicKey(priv.Public().(ed25519.PublicKey)),
		key: priv,
	}
}

// WriteOptions parameterizes BuildRecordsWrite. Zero values get defaults:
// a fresh uuid RecordID and the current time.
type WriteOptions struct {
	RecordID    string
	Data        []byte
	DataFormat  string
	Schema      string
	Protocol    string
	Published   bool
	DateCreated time.Time
}

// DataCID returns the digest stored in a write descriptor for a payload.
func DataCID(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func (s Signer) seal(descriptor any) (*Envelope, error) {
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("message: encode descriptor: %w", err)
	}
	env := &Envelope{Descriptor: raw}
	if err := env.Sign(s.DID, s.key); err != nil {
		return nil, err
	}
	return env, nil
}

// BuildRecordsWrite constructs and signs a RecordsWrite message.
func (s Signer) BuildRecordsWrite(o WriteOptions) (*Envelope, error) {
	if o.RecordID == "" {
		o.RecordID = uuid.NewString()
	}
	if o.DateCreated.IsZero() {
		o.DateCreated = time.Now()
	}
	d := RecordsWriteDescriptor{
		Interface:   InterfaceRecords,
		Method:      MethodWrite,
		DateCreated: FormatTime(o.DateCreated),
		RecordID:    o.RecordID,
		DataFormat:  o.DataFormat,
		Schema:      o.Schema,
		Protocol:    o.Protocol,
		Published:   o.Published,
	}
	if len(o.Data) > 0 {
		d.DataCID = DataCID(o.Data)
	}
	return s.seal(d)
}

// BuildRecordsDelete constructs and signs a RecordsDelete message.
func (s Signer) BuildRecordsDelete(recordID string, at time.Time) (*Envelope, error) {
	if at.IsZero() {
		at = time.Now()
	}
	return s.seal(RecordsDeleteDescriptor{
		Interface:   InterfaceRecords,
		Method:      MethodDelete,
		DateCreated: FormatTime(at),
		RecordID:    recordID,
	})
}

// BuildRecordsQuery constructs and signs a RecordsQuery message.
func (s Signer) BuildRecordsQuery(filter RecordFilter) (*Envelope, error) {
	return s.seal(RecordsQueryDescriptor{
		Interface:   InterfaceRecords,
		Method:      MethodQuery,
		DateCreated: FormatTime(time.Now()),
		Filter:      filter,
	})
}

// BuildProtocolsConfigure constructs and signs a ProtocolsConfigure message.
func (s Signer) BuildProtocolsConfigure(protocol string, def ProtocolDefinition, at time.Time) (*Envelope, error) {
	if at.IsZero() {
		at = time.Now()
	}
	return s.seal(ProtocolsConfigureDescriptor{
		Interface:   InterfaceProtocols,
		Method:      MethodConfigure,
		DateCreated: FormatTime(at),
		Protocol:    protocol,
		Definition:  def,
	})
}
