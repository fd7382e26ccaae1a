package message

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Actor names the party an access rule applies to.
const (
	ActorAnyone = "anyone"
	ActorOwner  = "owner"
)

// Actions a rule can grant.
const (
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionRead   = "read"
)

// AccessRule grants an actor a set of actions on records of one schema under
// a protocol.
type AccessRule struct {
	Schema  string   `json:"schema"`
	Actor   string   `json:"actor"`
	Actions []string `json:"actions"`
}

// Validate checks the rule shape.
func (r AccessRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Schema, validation.Required),
		validation.Field(&r.Actor, validation.Required, validation.In(ActorAnyone, ActorOwner)),
		validation.Field(&r.Actions, validation.Required, validation.Each(
			validation.In(ActionWrite, ActionDelete, ActionRead))),
	)
}

// ProtocolDefinition declares the access rules of a protocol.
type ProtocolDefinition struct {
	Rules []AccessRule `json:"rules"`
}

// Allows reports whether the definition grants action on schema to a
// non-owner actor.
func (d ProtocolDefinition) Allows(schema, action string) bool {
	for _, r := range d.Rules {
		if r.Schema != schema || r.Actor != ActorAnyone {
			continue
		}
		for _, a := range r.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}

// ProtocolsConfigureDescriptor installs (or replaces) a protocol definition
// in a tenant's namespace. Competing configures for the same protocol URI are
// resolved the same way record writes are.
type ProtocolsConfigureDescriptor struct {
	Interface   Interface          `json:"interface"`
	Method      Method             `json:"method"`
	DateCreated string             `json:"dateCreated"`
	Protocol    string             `json:"protocol"`
	Definition  ProtocolDefinition `json:"definition"`
}

// Validate checks the descriptor shape.
func (d ProtocolsConfigureDescriptor) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.Interface, validation.Required, validation.In(InterfaceProtocols)),
		validation.Field(&d.Method, validation.Required, validation.In(MethodConfigure)),
		validation.Field(&d.DateCreated, validation.Required),
		validation.Field(&d.Protocol, validation.Required),
		validation.Field(&d.Definition),
	); err != nil {
		return err
	}
	for _, r := range d.Definition.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Schema, err)
		}
	}
	_, err := ParseTime(d.DateCreated)
	return err
}

// ParseProtocolsConfigure decodes and validates a ProtocolsConfigure descriptor.
func ParseProtocolsConfigure(e *Envelope) (ProtocolsConfigureDescriptor, error) {
	var d ProtocolsConfigureDescriptor
	if err := json.Unmarshal(e.Descriptor, &d); err != nil {
		return d, fmt.Errorf("message: decode ProtocolsConfigure: %w", err)
	}
	return d, d.Validate()
}
