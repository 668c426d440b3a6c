package workflow

import (
	"sort"
)

// Task actions understood by the worker.
const (
	ActionEmbedding  = "embedding"
	ActionTranscribe = "transcribe"
	ActionDescribe   = "describe"
	ActionSummarize  = "summarize"
	ActionPrompt     = "prompt"
)

// Task is a unit of work handed out by GET /workflow/next.
// Media arrives either as a data URL in Content or in the explicit fields.
type Task struct {
	TaskID    string  `json:"task_id"`
	Action    string  `json:"action"`
	Content   string  `json:"content,omitempty"`
	Text      string  `json:"text,omitempty"`
	ImageData string  `json:"image_data,omitempty"`
	FileData  string  `json:"file_data,omitempty"`
	FileName  string  `json:"file_name,omitempty"`
	MimeType  string  `json:"mime_type,omitempty"`
	FileSize  float64 `json:"file_size,omitempty"`
}

// Result is what a handler produced for a task. Primary is the value sent
// back under the action's result field.
type Result interface {
	Primary() any
}

// resultFields maps each action to the key carrying its primary value.
var resultFields = map[string]string{
	ActionEmbedding:  "embedding",
	ActionTranscribe: "transcription",
	ActionDescribe:   "description",
	ActionSummarize:  "summary",
	ActionPrompt:     "response",
}

// Actions returns the known actions, sorted.
func Actions() []string {
	out := make([]string, 0, len(resultFields))
	for a := range resultFields {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Response is the body of POST /workflow/responses.
type Response struct {
	TaskID string         `json:"task_id"`
	Type   string         `json:"type"`
	Result map[string]any `json:"result"`
}

// ErrorDetail describes a failed task in a failure response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

const processingErrorCode = "PROCESSING_ERROR"

// SuccessResponse builds the response for a processed task.
func SuccessResponse(t *Task, res Result) Response {
	result := map[string]any{"success": true}
	if field, ok := resultFields[t.Action]; ok && res != nil {
		result[field] = res.Primary()
	}
	return Response{TaskID: t.TaskID, Type: t.Action, Result: result}
}

// FailureResponse builds the response for a task whose processing failed.
func FailureResponse(t *Task, err error) Response {
	return Response{
		TaskID: t.TaskID,
		Type:   t.Action,
		Result: map[string]any{
			"success": false,
			"error": ErrorDetail{
				Code:    processingErrorCode,
				Message: err.Error(),
				Details: "Erro no processamento de " + t.Action,
			},
		},
	}
}

// Registration is the outcome of POST /workflow/register.
type Registration struct {
	ServerID  string
	ServerKey string
	Message   string
}

// envelope is the common {success, message, data} reply of the workflow API.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *Task  `json:"data"`
}

type registerRequest struct {
	Slug       string `json:"slug"`
	ServerName string `json:"serverName"`
}

type registerResponse struct {
	Server struct {
		ID        any    `json:"id"`
		ServerKey string `json:"server_key"`
	} `json:"server"`
	Message string `json:"message"`
}
