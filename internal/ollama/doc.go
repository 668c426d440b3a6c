// Package ollama wraps the local Ollama serving runtime: the HTTP client used
// for inventory, pulls and inference, and the background `ollama serve`
// process launched by the startup sequence.
package ollama
