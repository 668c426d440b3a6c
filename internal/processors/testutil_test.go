package processors

import (
	"context"
	"encoding/base64"
	"sync"
)

type generateCall struct {
	Model   string
	Prompt  string
	Images  [][]byte
	Options map[string]any
}

type fakeRuntime struct {
	mu       sync.Mutex
	reply    string
	genErr   error
	vector   []float64
	embedErr error
	gens     []generateCall
	embeds   []string
}

func (f *fakeRuntime) Generate(_ context.Context, model, prompt string, images [][]byte, options map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gens = append(f.gens, generateCall{Model: model, Prompt: prompt, Images: images, Options: options})
	return f.reply, f.genErr
}

func (f *fakeRuntime) Embed(_ context.Context, _ string, text string, _ map[string]any) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds = append(f.embeds, text)
	return f.vector, f.embedErr
}

func (f *fakeRuntime) lastGenerate() generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.gens) == 0 {
		return generateCall{}
	}
	return f.gens[len(f.gens)-1]
}

func dataURL(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}
