package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

const (
	defaultWorkers = 4
	maxWorkers     = 64
)

// Config is the limen configuration file.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Corpus CorpusConfig      `yaml:"corpus"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Store  StoreConfig       `yaml:"store"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate checks every section, prefixing errors with the section key.
// Sections may fill in defaults.
func (c *Config) Validate() error {
	sections := []struct {
		key string
		v   validation.Validatable
	}{
		{"app", &c.App},
		{"corpus", &c.Corpus},
		{"sqlite", &c.SQLite},
		{"store", &c.Store},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
	}
	return nil
}

// ApplicationConfig holds process-wide settings.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig is the listen address of the API server. An empty Host
// listens on every interface.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the host:port the server listens on.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig points at the directory of .tagml, .texmecs and .lmnl
// sources. With Watch set, edits on disk are re-imported while serving.
type CorpusConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig is the location of the graph store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StoreConfig controls how document graphs are persisted.
type StoreConfig struct {
	// Compress stores graph blobs xz-compressed.
	Compress bool `yaml:"compress"`
	// Workers bounds concurrent imports in batch operations. Zero means
	// the default.
	Workers int `yaml:"workers"`
}

func (c *StoreConfig) Validate() error {
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(1), validation.Max(maxWorkers)),
	)
}

// AuthConfig guards the HTTP API.
//
//   - "disabled" (or empty): no authentication.
//   - "token": every /api request needs "Authorization: Bearer <Token>".
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Token,
			validation.When(c.Mode == AuthModeToken, validation.Required.Error("token is empty in token mode")),
		),
	)
}

// AuthEnabled reports whether bearer tokens are enforced.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns the configuration used when no file is given.
// Values read from a file override these field by field.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP:     HTTPConfig{Port: 8080},
		},
		Corpus: CorpusConfig{Path: "./corpus", Watch: true},
		SQLite: SQLiteConfig{Path: "./limen.db"},
		Store:  StoreConfig{Compress: true, Workers: defaultWorkers},
		Auth:   AuthConfig{Mode: AuthModeDisabled},
	}
}
