// Package auth implements the admission gate: authentication of a message's
// signature, then authorization of the signer against the tenant owner or a
// protocol's declared access rules.
//
// The gate fails closed: any key resolution or verification problem is an
// authorization failure, never "authenticated with unknown key". Storage
// failures while consulting protocol state propagate unmodified.
package auth

import (
	"fmt"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/message"
	"github.com/starford/othala/internal/store"
)

// Gate authorizes messages for admission. Stateless per call.
type Gate struct {
	resolver identity.Resolver
	idx      index.MessageIndex
	msgs     store.MessageStore
}

// NewGate creates a gate over the given resolver and stores.
func NewGate(resolver identity.Resolver, idx index.MessageIndex, msgs store.MessageStore) *Gate {
	return &Gate{resolver: resolver, idx: idx, msgs: msgs}
}

// Authenticate verifies the envelope's signature against the signer's
// currently resolvable key material.
func (g *Gate) Authenticate(env *message.Envelope) error {
	pub, err := g.resolver.Resolve(env.Authorization.Signer)
	if err != nil {
		return fmt.Errorf("%w: resolve signer: %v", apperr.ErrUnauthorized, err)
	}
	if err := env.Verify(pub); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	return nil
}

// Authorize runs both gate checks for a record mutation: the signer must
// authenticate, and must be the tenant owner or hold a protocol grant for
// action on the record's schema.
func (g *Gate) Authorize(tenant string, env *message.Envelope, protocol, schema, action string) error {
	if err := g.Authenticate(env); err != nil {
		return err
	}
	signer := env.Authorization.Signer
	if signer == tenant {
		return nil
	}
	if protocol == "" {
		return fmt.Errorf("%w: signer %s is not the tenant owner", apperr.ErrUnauthorized, signer)
	}
	def, err := g.protocolDefinition(tenant, protocol)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: protocol %s is not configured", apperr.ErrUnauthorized, protocol)
	}
	if !def.Allows(schema, action) {
		return fmt.Errorf("%w: protocol %s does not grant %s on %s", apperr.ErrUnauthorized, protocol, action, schema)
	}
	return nil
}

// CanRead reports whether signer may see a current row: the owner always,
// anyone for published rows, and protocol read grants for the rest.
func (g *Gate) CanRead(tenant, signer string, row index.Row) bool {
	if signer == tenant || row.Published {
		return true
	}
	if row.Protocol == "" {
		return false
	}
	def, err := g.protocolDefinition(tenant, row.Protocol)
	if err != nil || def == nil {
		return false
	}
	return def.Allows(row.Schema, message.ActionRead)
}

// protocolDefinition loads the newest persisted definition for a protocol
// URI, or nil when none exists.
func (g *Gate) protocolDefinition(tenant, protocol string) (*message.ProtocolDefinition, error) {
	row, err := g.idx.NewestProtocol(tenant, protocol)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	env, err := g.msgs.Get(tenant, row.CID)
	if err != nil {
		return nil, err
	}
	d, err := message.ParseProtocolsConfigure(env)
	if err != nil {
		return nil, fmt.Errorf("auth: stored configure %s: %w", row.CID, err)
	}
	return &d.Definition, nil
}
