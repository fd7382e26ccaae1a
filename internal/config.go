package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Payload store backends.
const (
	PayloadBackendBadger = "badger"
	PayloadBackendFS     = "fs"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Node   NodeConfig        `yaml:"node"`
	Store  StoreConfig       `yaml:"store"`
	Index  IndexConfig       `yaml:"index"`
	Events EventsConfig      `yaml:"events"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// NodeConfig holds the node's identity and tenancy configuration.
//
// Tenants lists the DIDs this node stores data for; messages targeting
// any other DID are rejected. When the list is empty the node serves
// only its own DID, derived from the key at KeyPath.
type NodeConfig struct {
	Tenants []string `yaml:"tenants"`
	KeyPath string   `yaml:"key_path"`
}

// Validate validates the node configuration.
func (c *NodeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KeyPath, validation.Required),
	)
}

// StoreConfig holds message and payload storage configuration.
//
// Backend selects where record payloads live:
//   - "badger" (default): payloads share the Badger database with messages.
//   - "fs": payloads are written as flat files under PayloadPath.
type StoreConfig struct {
	Path        string `yaml:"path"`
	Backend     string `yaml:"backend"`
	PayloadPath string `yaml:"payload_path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = PayloadBackendBadger
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Backend, validation.Required, validation.In(PayloadBackendBadger, PayloadBackendFS)),
	); err != nil {
		return err
	}
	if c.Backend == PayloadBackendFS && c.PayloadPath == "" {
		return fmt.Errorf("store: backend is %q but payload_path is empty", PayloadBackendFS)
	}
	return nil
}

// IndexConfig holds SQLite message index configuration.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EventsConfig holds SQLite event log configuration.
type EventsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the event log configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// InboxConfig holds the optional directory watched for message bundles.
// An empty path disables the inbox watcher.
type InboxConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration for the HTTP surface.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// This gates HTTP access only; message-level authorization is always
// enforced by signature verification regardless of mode.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Node: NodeConfig{
			KeyPath: "./othala.key",
		},
		Store: StoreConfig{
			Path:    "./data/store",
			Backend: PayloadBackendBadger,
		},
		Index: IndexConfig{
			Path: "./data/index.db",
		},
		Events: EventsConfig{
			Path: "./data/events.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
