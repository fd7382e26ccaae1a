package message

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RecordsWriteDescriptor describes a write to a logical record.
type RecordsWriteDescriptor struct {
	Interface   Interface `json:"interface"`
	Method      Method    `json:"method"`
	DateCreated string    `json:"dateCreated"`
	RecordID    string    `json:"recordId"`
	DataCID     string    `json:"dataCid,omitempty"` // digest of the associated payload
	DataFormat  string    `json:"dataFormat,omitempty"`
	Schema      string    `json:"schema,omitempty"`
	Protocol    string    `json:"protocol,omitempty"`
	Published   bool      `json:"published,omitempty"`
}

// Validate checks the descriptor shape.
func (d RecordsWriteDescriptor) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.Interface, validation.Required, validation.In(InterfaceRecords)),
		validation.Field(&d.Method, validation.Required, validation.In(MethodWrite)),
		validation.Field(&d.DateCreated, validation.Required),
		validation.Field(&d.RecordID, validation.Required),
	); err != nil {
		return err
	}
	_, err := ParseTime(d.DateCreated)
	return err
}

// RecordsQueryDescriptor describes a query over current records.
type RecordsQueryDescriptor struct {
	Interface   Interface    `json:"interface"`
	Method      Method       `json:"method"`
	DateCreated string       `json:"dateCreated"`
	Filter      RecordFilter `json:"filter"`
}

// RecordFilter narrows a query; empty fields are not constrained.
type RecordFilter struct {
	RecordID   string `json:"recordId,omitempty"`
	Schema     string `json:"schema,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	DataFormat string `json:"dataFormat,omitempty"`
}

// Validate checks the descriptor shape.
func (d RecordsQueryDescriptor) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.Interface, validation.Required, validation.In(InterfaceRecords)),
		validation.Field(&d.Method, validation.Required, validation.In(MethodQuery)),
		validation.Field(&d.DateCreated, validation.Required),
	); err != nil {
		return err
	}
	_, err := ParseTime(d.DateCreated)
	return err
}

// RecordsDeleteDescriptor describes the deletion of a logical record. A
// delete is itself a new message competing in conflict resolution, not a
// field flip on existing state.
type RecordsDeleteDescriptor struct {
	Interface   Interface `json:"interface"`
	Method      Method    `json:"method"`
	DateCreated string    `json:"dateCreated"`
	RecordID    string    `json:"recordId"`
}

// Validate checks the descriptor shape.
func (d RecordsDeleteDescriptor) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.Interface, validation.Required, validation.In(InterfaceRecords)),
		validation.Field(&d.Method, validation.Required, validation.In(MethodDelete)),
		validation.Field(&d.DateCreated, validation.Required),
		validation.Field(&d.RecordID, validation.Required),
	); err != nil {
		return err
	}
	_, err := ParseTime(d.DateCreated)
	return err
}

// ParseRecordsWrite decodes and validates a RecordsWrite descriptor.
func ParseRecordsWrite(e *Envelope) (RecordsWriteDescriptor, error) {
	var d RecordsWriteDescriptor
	if err := json.Unmarshal(e.Descriptor, &d); err != nil {
		return d, fmt.Errorf("message: decode RecordsWrite: %w", err)
	}
	return d, d.Validate()
}

// ParseRecordsQuery decodes and validates a RecordsQuery descriptor.
func ParseRecordsQuery(e *Envelope) (RecordsQueryDescriptor, error) {
	var d RecordsQueryDescriptor
	if err := json.Unmarshal(e.Descriptor, &d); err != nil {
		return d, fmt.Errorf("message: decode RecordsQuery: %w", err)
	}
	return d, d.Validate()
}

// ParseRecordsDelete decodes and validates a RecordsDelete descriptor.
func ParseRecordsDelete(e *Envelope) (RecordsDeleteDescriptor, error) {
	var d RecordsDeleteDescriptor
	if err := json.Unmarshal(e.Descriptor, &d); err != nil {
		return d, fmt.Errorf("message: decode RecordsDelete: %w", err)
	}
	return d, d.Validate()
}
