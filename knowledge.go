package quizforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FileKind selects how a knowledge file is turned into text
type FileKind int

const (
	KindPlainText FileKind = iota
	KindJSON
	KindPDF
)

func (k FileKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindPDF:
		return "pdf"
	default:
		return "text"
	}
}

// KindFromPath resolves the kind from the lowercase file-name suffix
func KindFromPath(p string) FileKind {
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return KindPDF
	case ".json":
		return KindJSON
	default:
		return KindPlainText
	}
}

// ExtractBytes converts raw file contents to text for the given kind
func ExtractBytes(kind FileKind, data []byte) (string, error) {
	switch kind {
	case KindPDF:
		return extractPDF(data)
	case KindJSON:
		return extractJSON(data)
	default:
		return extractPlainText(data), nil
	}
}

func extractPlainText(data []byte) string {
	return string(data)
}

// extractJSON re-serializes with two-space indentation. Numbers are kept verbatim.
func extractJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("failed to parse json: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("failed to parse json: trailing data")
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format json: %w", err)
	}
	return string(out), nil
}

// extractPDF emits the text of every row of every page, top to bottom, each row
// followed by a newline.
func extractPDF(data []byte) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		for _, row := range rows {
			for _, fragment := range row.Content {
				sb.WriteString(fragment.S)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// KnowledgeExtractor fetches stored knowledge files and returns their text
type KnowledgeExtractor struct {
	store ObjectStore
}

// NewKnowledgeExtractor creates an extractor reading from store
func NewKnowledgeExtractor(store ObjectStore) *KnowledgeExtractor {
	return &KnowledgeExtractor{store: store}
}

// ExtractText returns the text of the file at ref. All failures are reported as
// an opaque extraction error; the cause is only logged.
func (ke *KnowledgeExtractor) ExtractText(ctx context.Context, ref string) (string, error) {
	data, err := ke.store.Get(ctx, ref)
	if err != nil {
		logger.Errorw("knowledge retrieval failed", "ref", ref, "error", err)
		return "", extractionError("failed to extract text")
	}
	if len(data) == 0 {
		return "", extractionError("empty content")
	}

	kind := KindFromPath(ref)
	text, err := ExtractBytes(kind, data)
	if err != nil {
		logger.Errorw("knowledge parse failed", "ref", ref, "kind", kind.String(), "error", err)
		return "", extractionError("failed to extract text")
	}

	VerboseLog("Extracted %d characters of %s knowledge from %s", len(text), kind, ref)
	return text, nil
}
