package processors

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Runtime is the inference surface the processors need.
type Runtime interface {
	Generate(ctx context.Context, model, prompt string, images [][]byte, options map[string]any) (string, error)
	Embed(ctx context.Context, model, text string, options map[string]any) ([]float64, error)
}

// invalidInputError marks a task rejected before any inference ran.
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return invalidInputError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalidInput reports whether err is a validation failure (size, type, length).
func IsInvalidInput(err error) bool {
	var v invalidInputError
	return errors.As(err, &v)
}

// media is a decoded payload with its declared type.
type media struct {
	mime string
	data []byte
}

// parseDataURL splits "data:<mime>;base64,<payload>". ok is false for anything else.
func parseDataURL(s string) (mime, payload string, ok bool) {
	if !strings.HasPrefix(s, "data:") {
		return "", "", false
	}
	header, payload, found := strings.Cut(s, ",")
	if !found {
		return "", "", false
	}
	mime, _, _ = strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	return mime, payload, true
}

// decodeBase64 accepts padded or unpadded standard base64, and a data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if _, payload, ok := parseDataURL(s); ok {
		s = payload
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b2, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err2 == nil {
			return b2, nil
		}
		return nil, invalidf("invalid base64 payload: %v", err)
	}
	return b, nil
}

// decodeMedia turns a data URL (or raw base64 with fallbackMime) into bytes.
func decodeMedia(s, fallbackMime string) (media, error) {
	mime, payload, ok := parseDataURL(s)
	if !ok {
		mime, payload = fallbackMime, s
	}
	if mime == "" {
		return media{}, invalidf("missing mime type")
	}
	b, err := decodeBase64(payload)
	if err != nil {
		return media{}, err
	}
	return media{mime: mime, data: b}, nil
}

func validateSize(size, max int64) error {
	if max > 0 && size > max {
		const mb = 1024 * 1024
		return invalidf("file too large: %.2fMB (max %.2fMB)", float64(size)/mb, float64(max)/mb)
	}
	return nil
}

func validateMIME(mime string, allowed []string) error {
	if !slices.Contains(allowed, mime) {
		return invalidf("unsupported mime type %s; allowed: %s", mime, strings.Join(allowed, ", "))
	}
	return nil
}

func validateLength(what, text string, max int) error {
	if n := utf8.RuneCountInString(text); max > 0 && n > max {
		return invalidf("%s too long: %d characters (max %d)", what, n, max)
	}
	return nil
}

// estimateTokens approximates a token count from whitespace-separated words.
func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// clampConfidence bounds a heuristic confidence to [0.7, 0.95].
func clampConfidence(v float64) float64 {
	return min(0.95, max(0.7, v))
}

// truncateRunes keeps the first n runes of s, appending "..." when it cut.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
