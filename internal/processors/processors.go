package processors

import (
	"github.com/rs/zerolog"

	"workflowd/internal/config"
	"workflowd/internal/workflow"
)

// Registry is where handlers are installed, typically a *workflow.Poller.
type Registry interface {
	Handle(action string, h workflow.Handler)
}

// Register installs a handler for every action using cfg's models and limits.
func Register(reg Registry, rt Runtime, cfg config.Config, log zerolog.Logger) {
	reg.Handle(workflow.ActionEmbedding, &Embedder{
		Runtime:       rt,
		Model:         cfg.ModelEmbeddings,
		MaxTextLength: cfg.MaxTextLength,
		Log:           log.With().Str("action", workflow.ActionEmbedding).Logger(),
	})
	reg.Handle(workflow.ActionPrompt, &Prompter{
		Runtime:       rt,
		Model:         cfg.ModelConversacao,
		MaxTextLength: cfg.MaxTextLength,
	})
	reg.Handle(workflow.ActionDescribe, &Describer{
		Runtime:  rt,
		Model:    cfg.ModelVisao,
		MaxBytes: cfg.MaxImageSizeBytes(),
	})
	reg.Handle(workflow.ActionSummarize, &Summarizer{
		Runtime:       rt,
		Model:         cfg.ModelResumo,
		MaxBytes:      cfg.MaxDocumentSizeBytes(),
		MaxTextLength: cfg.MaxTextLength,
	})
	reg.Handle(workflow.ActionTranscribe, &Transcriber{
		Bin:      cfg.WhisperBin,
		Model:    cfg.WhisperModel,
		Device:   cfg.TorchDevice,
		MaxBytes: cfg.MaxAudioSizeBytes(),
		Log:      log.With().Str("action", workflow.ActionTranscribe).Logger(),
	})
}
