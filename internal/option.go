package internal

import (
	"io"
	"log/slog"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	logOut io.Writer
	stdout io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput sends structured logs to w instead of stdout. The MCP
// server needs this because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithStdout redirects command output, for tests.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

func newApplication(opts []Option) *application {
	app := &application{logOut: os.Stdout, stdout: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// logger builds the JSON logger and installs it as the default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
