package bootstrap

import (
	"context"

	"github.com/rs/zerolog"

	"workflowd/internal/ollama"
)

// ModelRuntime is the part of the serving runtime the reconciler needs.
type ModelRuntime interface {
	Models(ctx context.Context) (ollama.Inventory, error)
	Pull(ctx context.Context, name string) error
}

// Reconciler makes sure every required model is in the runtime inventory.
type Reconciler struct {
	Runtime   ModelRuntime
	Publisher EventPublisher
	Log       zerolog.Logger
}

// Ensure walks names in order, querying the inventory for each and pulling
// the absent ones. The first failure aborts; later names are not attempted.
// It returns the names that were pulled.
func (r *Reconciler) Ensure(ctx context.Context, names []string) ([]string, error) {
	pub := publisherOrNoop(r.Publisher)
	var pulled []string
	for _, name := range names {
		inv, err := r.Runtime.Models(ctx)
		if err != nil {
			r.Log.Error().Str("model", name).Err(err).Msg("inventory query failed")
			return pulled, modelFetchError{model: name, op: "inventory", err: err}
		}
		if inv.Has(name) {
			r.Log.Info().Str("model", name).Msg("model present")
			pub.Publish(Event{Name: "model_present", Subject: name})
			continue
		}
		r.Log.Info().Str("model", name).Msg("pulling model")
		pub.Publish(Event{Name: "model_pull_start", Subject: name})
		if err := r.Runtime.Pull(ctx, name); err != nil {
			modelPulls.WithLabelValues("error").Inc()
			r.Log.Error().Str("model", name).Err(err).Msg("model pull failed")
			pub.Publish(Event{Name: "model_pull_failed", Subject: name, Fields: map[string]any{"error": err.Error()}})
			return pulled, modelFetchError{model: name, op: "pull", err: err}
		}
		modelPulls.WithLabelValues("success").Inc()
		r.Log.Info().Str("model", name).Msg("model pulled")
		pub.Publish(Event{Name: "model_pulled", Subject: name})
		pulled = append(pulled, name)
	}
	return pulled, nil
}
