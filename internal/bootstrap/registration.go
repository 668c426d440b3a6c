package bootstrap

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Registrar obtains a new server key from the remote API.
type Registrar interface {
	Register(ctx context.Context) (string, error)
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(ctx context.Context) (string, error)

func (f RegistrarFunc) Register(ctx context.Context) (string, error) { return f(ctx) }

// NeedsRegistration reports whether key is blank or still the shipped placeholder.
func NeedsRegistration(key, placeholder string) bool {
	k := strings.TrimSpace(key)
	return k == "" || (placeholder != "" && k == placeholder)
}

// RegistrationGate runs the registrar once when the current key is unusable.
type RegistrationGate struct {
	Registrar   Registrar
	Placeholder string
	// EnvFile receives the new key through Persist when both are set.
	EnvFile   string
	Persist   func(path, key, value string) error
	Publisher EventPublisher
	Log       zerolog.Logger
}

// Run returns the key to hand off with and whether a registration succeeded.
// Failures are logged and leave the current key in place.
func (g *RegistrationGate) Run(ctx context.Context, current string) (string, bool) {
	pub := publisherOrNoop(g.Publisher)
	if !NeedsRegistration(current, g.Placeholder) {
		g.Log.Debug().Msg("server key configured; registration skipped")
		return current, false
	}
	if g.Registrar == nil {
		g.Log.Warn().Msg("server key missing and no registrar configured; continuing unregistered")
		return current, false
	}
	g.Log.Info().Msg("server key missing or placeholder; registering")
	pub.Publish(Event{Name: "register_start"})
	key, err := g.Registrar.Register(ctx)
	if err == nil && strings.TrimSpace(key) == "" {
		err = errEmptyServerKey
	}
	if err != nil {
		g.Log.Warn().Err(err).Msg("registration failed; continuing without a server key")
		pub.Publish(Event{Name: "register_failed", Fields: map[string]any{"error": err.Error()}})
		return current, false
	}
	pub.Publish(Event{Name: "registered"})
	g.Log.Info().Msg("server registered")
	if g.EnvFile != "" && g.Persist != nil {
		if perr := g.Persist(g.EnvFile, "SERVER_KEY", key); perr != nil {
			g.Log.Warn().Err(perr).Str("env_file", g.EnvFile).Msg("could not persist server key")
		} else {
			g.Log.Info().Str("env_file", g.EnvFile).Msg("server key persisted")
		}
	}
	return key, true
}
