package processors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"workflowd/internal/workflow"
)

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLS  = "application/vnd.ms-excel"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeTXT  = "text/plain"
	mimeCSV  = "text/csv"
)

var documentMIMETypes = []string{mimePDF, mimeDOC, mimeDOCX, mimeXLS, mimeXLSX, mimeTXT, mimeCSV}

var documentExtensions = map[string]string{
	mimePDF:  "pdf",
	mimeDOC:  "doc",
	mimeDOCX: "docx",
	mimeXLS:  "xls",
	mimeXLSX: "xlsx",
	mimeTXT:  "txt",
	mimeCSV:  "csv",
}

const (
	maxKeyPoints       = 8
	fallbackKeyPoints  = 5
	fallbackSummaryLen = 500
)

// SummaryResult is a parsed structured summary.
type SummaryResult struct {
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	DocumentType string   `json:"document_type"`
	Confidence   float64  `json:"confidence"`
}

func (r SummaryResult) Primary() any { return r.Summary }

// Summarizer handles the summarize action.
type Summarizer struct {
	Runtime       Runtime
	Model         string
	MaxBytes      int64
	MaxTextLength int
}

func (s *Summarizer) Handle(ctx context.Context, t *workflow.Task) (workflow.Result, error) {
	text, err := s.documentText(t)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, invalidf("document has no text")
	}
	text = truncateRunes(text, s.MaxTextLength)
	out, err := s.Runtime.Generate(ctx, s.Model, summaryPrompt(text), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	if out == "" {
		return nil, errors.New("summarize: model returned an empty summary")
	}
	return parseSummary(out), nil
}

// documentText resolves the task payload to plain text. A data URL in
// Content or FileData is decoded and extracted; anything else in Content
// or Text is taken as the document itself.
func (s *Summarizer) documentText(t *workflow.Task) (string, error) {
	payload, mime := t.Content, t.MimeType
	if payload == "" {
		payload = t.FileData
	}
	if _, _, ok := parseDataURL(payload); !ok {
		if t.Content == "" && t.FileData != "" && mime != "" {
			// Raw base64 file with a declared type.
			return s.extractFile(t.FileData, mime, t.FileName)
		}
		if t.Content != "" {
			return t.Content, nil
		}
		if t.Text != "" {
			return t.Text, nil
		}
		return "", invalidf("task has no document content")
	}
	return s.extractFile(payload, mime, t.FileName)
}

func (s *Summarizer) extractFile(payload, mime, name string) (string, error) {
	m, err := decodeMedia(payload, mime)
	if err != nil {
		return "", err
	}
	if err := validateSize(int64(len(m.data)), s.MaxBytes); err != nil {
		return "", err
	}
	if err := validateMIME(m.mime, documentMIMETypes); err != nil {
		return "", err
	}
	return extractText(m.data, documentExtension(m.mime, name))
}

// documentExtension prefers the file name's extension, then the mime type.
func documentExtension(mime, name string) string {
	if ext := strings.TrimPrefix(filepath.Ext(name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if ext, ok := documentExtensions[mime]; ok {
		return ext
	}
	return "txt"
}

func extractText(b []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case "pdf":
		text, err = pdfText(b)
	case "docx":
		text, err = docxText(b)
	case "xlsx":
		text, err = xlsxText(b)
	case "txt", "csv":
		text = plainText(b)
	default:
		return "", invalidf("unsupported document format: %s", ext)
	}
	if err != nil {
		return "", invalidf("extract %s text: %v", ext, err)
	}
	return strings.TrimSpace(text), nil
}

func pdfText(b []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", err
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// docxText collects the paragraphs of word/document.xml, one per line.
func docxText(b []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", err
	}
	f, err := zr.Open("word/document.xml")
	if err != nil {
		return "", err
	}
	defer f.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}

// xlsxText renders each sheet as a "Planilha: <name>" header followed by
// its non-empty rows with cells joined by " | ".
func xlsxText(b []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		sb.WriteString("Planilha: " + sheet + "\n")
		for _, row := range rows {
			line := strings.Join(row, " | ")
			if strings.TrimSpace(line) != "" {
				sb.WriteString(line + "\n")
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// plainText decodes UTF-8, falling back to Latin-1.
func plainText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func summaryPrompt(text string) string {
	return `Analise o seguinte documento e crie um resumo estruturado em português brasileiro.

Documento:
` + text + `

Por favor, forneça:
1. Um resumo conciso do conteúdo principal
2. Os pontos-chave mais importantes (lista com até 8 itens)
3. O tipo de documento identificado

Formate a resposta como:
RESUMO: [resumo do conteúdo]
PONTOS-CHAVE:
- [ponto 1]
- [ponto 2]
- ...
TIPO: [tipo do documento]`
}

// parseSummary reads the RESUMO / PONTOS-CHAVE / TIPO sections.
func parseSummary(raw string) SummaryResult {
	var (
		summary   string
		points    []string
		docType   = "documento"
		inSummary bool
		inPoints  bool
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "RESUMO:"):
			summary = strings.TrimSpace(strings.TrimPrefix(line, "RESUMO:"))
			inSummary, inPoints = true, false
		case strings.HasPrefix(line, "PONTOS-CHAVE:"):
			inSummary, inPoints = false, true
		case strings.HasPrefix(line, "TIPO:"):
			docType = strings.TrimSpace(strings.TrimPrefix(line, "TIPO:"))
			inSummary, inPoints = false, false
		case inPoints && strings.HasPrefix(line, "-"):
			if p := strings.TrimSpace(strings.TrimPrefix(line, "-")); p != "" {
				points = append(points, p)
			}
		case inSummary && summary == "":
			summary = line
		}
	}
	if summary == "" {
		summary = raw
		if runeLen(raw) > fallbackSummaryLen {
			summary = truncateRunes(raw, fallbackSummaryLen)
		}
	}
	if len(points) == 0 {
		for _, s := range strings.Split(summary, ".") {
			if s = strings.TrimSpace(s); s != "" {
				points = append(points, s)
			}
			if len(points) == fallbackKeyPoints {
				break
			}
		}
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	if points == nil {
		points = []string{}
	}
	return SummaryResult{
		Summary:      summary,
		KeyPoints:    points,
		DocumentType: docType,
		Confidence:   clampConfidence(float64(runeLen(summary)) / 200),
	}
}
