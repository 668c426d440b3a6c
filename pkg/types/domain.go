package types

import "time"

// ModelRole binds a processing role to the runtime model that serves it.
type ModelRole struct {
	// Processing role (visao, conversacao, resumo, transcricao, embeddings).
	// example: visao
	Role string `json:"role" example:"visao"`
	// Runtime model identifier.
	// example: llava:7b
	Model string `json:"model" example:"llava:7b"`
}

// TaskRecord is one processed task as kept in the journal.
type TaskRecord struct {
	// Task identifier issued by the workflow API.
	// example: 7f3c2a
	TaskID string `json:"task_id" example:"7f3c2a"`
	// Action requested (transcribe, describe, summarize, embedding, prompt).
	// example: describe
	Action string `json:"action" example:"describe"`
	// Whether processing produced a successful result.
	Success bool `json:"success" example:"true"`
	// Processing error, when Success is false.
	Error string `json:"error,omitempty"`
	// Whether the response was delivered to the workflow API.
	Delivered  bool      `json:"delivered" example:"true"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Processing time in milliseconds.
	// example: 1250
	DurationMS int64 `json:"duration_ms" example:"1250"`
}
