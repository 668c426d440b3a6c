package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid limit
	Error string `json:"error" example:"invalid limit"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Worker state (starting, polling, processing, stopped).
	// example: polling
	State string `json:"state" example:"polling"`
	// Server name announced to the workflow API.
	// example: Servidor Local HubIA
	ServerName string `json:"server_name" example:"Servidor Local HubIA"`
	// Whether a usable server key is configured.
	Registered bool `json:"registered" example:"true"`
	// Configured model per processing role.
	Models []ModelRole `json:"models"`
	// Actions the worker can process.
	Actions []string `json:"actions"`
	// Tasks processed successfully since start.
	// example: 12
	TasksSucceeded uint64 `json:"tasks_succeeded" example:"12"`
	// Tasks that produced a failure response since start.
	// example: 1
	TasksFailed uint64 `json:"tasks_failed" example:"1"`
	// Poll cycles that ended in an error.
	// example: 0
	PollErrors uint64 `json:"poll_errors" example:"0"`
	// Last error observed by the worker (if any).
	LastError string `json:"last_error,omitempty"`
	// Task currently being processed (if any).
	CurrentTask string `json:"current_task,omitempty"`
	// Uptime of the worker in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Totals across restarts, present when the task journal is enabled.
	History *TaskTotals `json:"history,omitempty"`
}

// TaskTotals counts journaled task outcomes.
type TaskTotals struct {
	Succeeded int `json:"succeeded" example:"120"`
	Failed    int `json:"failed" example:"3"`
}

// TasksResponse wraps the recent journal entries returned by GET /tasks.
type TasksResponse struct {
	Tasks []TaskRecord `json:"tasks"`
}
