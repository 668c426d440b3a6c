package processors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"workflowd/internal/workflow"
)

var audioMIMETypes = []string{
	"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg",
	"audio/aac", "audio/m4a", "audio/flac",
}

var audioExtensions = map[string]string{
	"audio/mpeg": "mp3",
	"audio/mp3":  "mp3",
	"audio/wav":  "wav",
	"audio/ogg":  "ogg",
	"audio/aac":  "aac",
	"audio/m4a":  "m4a",
	"audio/flac": "flac",
}

// TranscribeResult is a Whisper transcription.
type TranscribeResult struct {
	Transcription string  `json:"transcription"`
	Confidence    float64 `json:"confidence"`
	Language      string  `json:"language"`
	Duration      float64 `json:"duration"`
}

func (r TranscribeResult) Primary() any { return r.Transcription }

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Transcriber handles the transcribe action by shelling out to the Whisper CLI.
type Transcriber struct {
	Bin      string
	Model    string
	Device   string
	MaxBytes int64
	Run      CommandRunner
	Log      zerolog.Logger
}

func (tr *Transcriber) Handle(ctx context.Context, t *workflow.Task) (workflow.Result, error) {
	payload := t.Content
	if payload == "" {
		payload = t.FileData
	}
	if payload == "" {
		return nil, invalidf("task has no audio content")
	}
	m, err := decodeMedia(payload, t.MimeType)
	if err != nil {
		return nil, err
	}
	if err := validateSize(int64(len(m.data)), tr.MaxBytes); err != nil {
		return nil, err
	}
	if err := validateMIME(m.mime, audioMIMETypes); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "workflowd-audio-*")
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	defer os.RemoveAll(dir)

	ext, ok := audioExtensions[m.mime]
	if !ok {
		ext = "mp3"
	}
	input := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(input, m.data, 0o600); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	text, err := tr.transcribe(ctx, input, dir, true)
	if err != nil {
		tr.Log.Warn().Err(err).Msg("whisper failed with language pt, retrying with detection")
		text, err = tr.transcribe(ctx, input, dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if text == "" {
		return nil, errors.New("transcribe: whisper returned an empty transcription")
	}
	return TranscribeResult{
		Transcription: text,
		Confidence:    clampConfidence(float64(runeLen(text)) / 100),
		Language:      "pt-BR",
		Duration:      float64(runeLen(text)) * 0.1,
	}, nil
}

func (tr *Transcriber) transcribe(ctx context.Context, input, outDir string, withLanguage bool) (string, error) {
	args := []string{input,
		"--model", tr.modelName(),
		"--output_format", "txt",
		"--output_dir", outDir,
		"--fp16", "False",
		"--verbose", "False",
	}
	if tr.Device != "" {
		args = append(args, "--device", tr.Device)
	}
	if withLanguage {
		args = append(args, "--language", "pt")
	}
	run := tr.Run
	if run == nil {
		run = execRunner
	}
	if out, err := run(ctx, tr.bin(), args...); err != nil {
		return "", fmt.Errorf("%s: %w: %s", tr.bin(), err, strings.TrimSpace(string(out)))
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	b, err := os.ReadFile(filepath.Join(outDir, base+".txt"))
	if err != nil {
		return "", fmt.Errorf("read transcription: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (tr *Transcriber) bin() string {
	if tr.Bin == "" {
		return "whisper"
	}
	return tr.Bin
}

func (tr *Transcriber) modelName() string {
	if tr.Model == "" {
		return "base"
	}
	return tr.Model
}

// FFmpegAvailable reports whether ffmpeg is on PATH. Whisper needs it to decode audio.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}
