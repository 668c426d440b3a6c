package processors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"workflowd/internal/workflow"
)

const (
	maxImageSide = 1024
	jpegQuality  = 85
)

var imageMIMETypes = []string{
	"image/jpeg", "image/jpg", "image/png", "image/gif",
	"image/bmp", "image/webp", "image/tiff",
}

const describePrompt = `Descreva esta imagem em português brasileiro. Inclua:
1. Uma descrição geral da imagem
2. Objetos principais visíveis
3. Cores predominantes
4. Qualquer texto visível na imagem

Seja detalhado mas conciso.`

var (
	colorWords = []string{
		"vermelho", "azul", "verde", "amarelo", "preto", "branco", "cinza",
		"rosa", "roxo", "laranja", "marrom", "bege", "dourado", "prateado",
	}
	objectWords = []string{
		"pessoa", "carro", "casa", "árvore", "cachorro", "gato", "mesa", "cadeira",
		"computador", "telefone", "livro", "papel", "caneta", "logo", "texto",
		"imagem", "foto", "desenho", "gráfico", "botão", "ícone",
	}
	textMarkers = []string{"texto", "escrito", "palavra", "letra"}
)

// DescribeResult is a parsed image description.
type DescribeResult struct {
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
	Objects     []string `json:"objects"`
	Colors      []string `json:"colors"`
	Text        *string  `json:"text"`
}

func (r DescribeResult) Primary() any { return r.Description }

// Describer handles the describe action with a vision model.
type Describer struct {
	Runtime  Runtime
	Model    string
	MaxBytes int64
}

func (d *Describer) Handle(ctx context.Context, t *workflow.Task) (workflow.Result, error) {
	m, err := imageInput(t)
	if err != nil {
		return nil, err
	}
	if err := validateSize(int64(len(m.data)), d.MaxBytes); err != nil {
		return nil, err
	}
	if err := validateMIME(m.mime, imageMIMETypes); err != nil {
		return nil, err
	}
	jpg, err := normalizeImage(m.data)
	if err != nil {
		return nil, err
	}
	out, err := d.Runtime.Generate(ctx, d.Model, describePrompt, [][]byte{jpg}, nil)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	if out == "" {
		return nil, errors.New("describe: model returned an empty description")
	}
	return parseDescription(out), nil
}

// imageInput reads the image from Content, falling back to ImageData.
// Raw base64 without a declared type is treated as JPEG.
func imageInput(t *workflow.Task) (media, error) {
	switch {
	case t.Content != "":
		return decodeMedia(t.Content, "image/jpeg")
	case t.ImageData != "":
		fallback := t.MimeType
		if fallback == "" {
			fallback = "image/jpeg"
		}
		return decodeMedia(t.ImageData, fallback)
	}
	return media{}, invalidf("task has no image content")
}

// normalizeImage decodes any supported format, flattens it onto white,
// shrinks it to fit 1024x1024 and re-encodes it as JPEG.
func normalizeImage(b []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, invalidf("decode image: %v", err)
	}
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if w > maxImageSide || h > maxImageSide {
		scale := min(float64(maxImageSide)/float64(w), float64(maxImageSide)/float64(h))
		w = max(1, int(float64(w)*scale+0.5))
		h = max(1, int(float64(h)*scale+0.5))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// parseDescription lowercases and joins the model output and extracts
// mentioned colors, objects and quoted text.
func parseDescription(raw string) DescribeResult {
	var (
		desc    []string
		colors  []string
		objects []string
		text    *string
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		desc = append(desc, line)
		colors = appendMatches(colors, line, colorWords)
		objects = appendMatches(objects, line, objectWords)
		if containsAny(line, textMarkers) && strings.Contains(line, ":") {
			v := strings.TrimSpace(line[strings.LastIndex(line, ":")+1:])
			text = &v
		}
	}
	description := strings.Join(desc, " ")
	return DescribeResult{
		Description: description,
		Confidence:  clampConfidence(float64(runeLen(description)) / 200),
		Objects:     limit(objects, 10),
		Colors:      limit(colors, 5),
		Text:        text,
	}
}

// appendMatches adds every word found in line that dst does not hold yet.
func appendMatches(dst []string, line string, words []string) []string {
	for _, w := range words {
		if strings.Contains(line, w) && !containsString(dst, w) {
			dst = append(dst, w)
		}
	}
	return dst
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func limit(s []string, n int) []string {
	if s == nil {
		return []string{}
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
