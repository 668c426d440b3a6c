package processors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowd/internal/workflow"
)

// whisperStub imitates the Whisper CLI: it writes text into
// <output_dir>/<input base>.txt. failWithLanguage makes runs that pass
// --language fail.
type whisperStub struct {
	text             string
	failWithLanguage bool
	calls            [][]string
	inputs           []string
}

func (w *whisperStub) run(_ context.Context, name string, args ...string) ([]byte, error) {
	w.calls = append(w.calls, append([]string{name}, args...))
	w.inputs = append(w.inputs, args[0])
	if w.failWithLanguage && slices.Contains(args, "--language") {
		return []byte("RuntimeError: unsupported language"), errors.New("exit status 1")
	}
	dir := args[slices.Index(args, "--output_dir")+1]
	base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	return nil, os.WriteFile(filepath.Join(dir, base+".txt"), []byte(w.text+"\n"), 0o600)
}

func TestTranscriberHandle(t *testing.T) {
	stub := &whisperStub{text: "bom dia a todos"}
	tr := &Transcriber{Bin: "whisper", Model: "small", Device: "cpu", Run: stub.run, Log: zerolog.Nop()}

	res, err := tr.Handle(context.Background(), &workflow.Task{Action: workflow.ActionTranscribe, Content: dataURL("audio/wav", []byte("RIFF"))})
	require.NoError(t, err)
	r := res.(TranscribeResult)
	assert.Equal(t, "bom dia a todos", r.Transcription)
	assert.Equal(t, "pt-BR", r.Language)
	assert.InDelta(t, 1.5, r.Duration, 1e-9)
	assert.Equal(t, 0.7, r.Confidence)

	require.Len(t, stub.calls, 1)
	call := stub.calls[0]
	assert.Equal(t, "whisper", call[0])
	assert.Equal(t, ".wav", filepath.Ext(call[1]))
	assert.Subset(t, call, []string{"--model", "small", "--device", "cpu", "--language", "pt"})

	_, err = os.Stat(filepath.Dir(stub.inputs[0]))
	assert.True(t, os.IsNotExist(err), "temp dir should be removed")
}

func TestTranscriberRetriesWithoutLanguage(t *testing.T) {
	stub := &whisperStub{text: "hello", failWithLanguage: true}
	tr := &Transcriber{Run: stub.run, Log: zerolog.Nop()}

	res, err := tr.Handle(context.Background(), &workflow.Task{Content: dataURL("audio/mpeg", []byte("ID3"))})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.(TranscribeResult).Transcription)
	require.Len(t, stub.calls, 2)
	assert.NotContains(t, stub.calls[1], "--language")
	assert.Equal(t, ".mp3", filepath.Ext(stub.calls[1][1]))
}

func TestTranscriberErrors(t *testing.T) {
	ctx := context.Background()
	audio := dataURL("audio/ogg", []byte("OggS"))

	tr := &Transcriber{Run: (&whisperStub{text: "   "}).run, Log: zerolog.Nop()}
	_, err := tr.Handle(ctx, &workflow.Task{Content: audio})
	assert.ErrorContains(t, err, "empty transcription")

	failing := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("no such model"), errors.New("exit status 2")
	}
	tr = &Transcriber{Run: failing, Log: zerolog.Nop()}
	_, err = tr.Handle(ctx, &workflow.Task{Content: audio})
	assert.ErrorContains(t, err, "no such model")

	_, err = tr.Handle(ctx, &workflow.Task{})
	assert.True(t, IsInvalidInput(err))

	_, err = tr.Handle(ctx, &workflow.Task{Content: dataURL("audio/x-midi", []byte("x"))})
	assert.True(t, IsInvalidInput(err))

	tr.MaxBytes = 2
	_, err = tr.Handle(ctx, &workflow.Task{Content: audio})
	assert.ErrorContains(t, err, "too large")
}
