package httpapi

// maxTasksLimit caps the ?limit= accepted by GET /tasks.
var maxTasksLimit = 500

// SetMaxTasksLimit configures the largest page GET /tasks serves.
func SetMaxTasksLimit(n int) {
	if n <= 0 {
		maxTasksLimit = 500
		return
	}
	maxTasksLimit = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
