// Package processors implements the task handlers the worker dispatches to:
// embeddings, prompts, image description, document summaries and audio
// transcription. Inference goes through the Ollama runtime; transcription
// shells out to the Whisper CLI.
package processors
