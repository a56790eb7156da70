package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"study-companion/internal/domain"
)

// MaxInlineText is the number of characters of a text document sent to the oracle.
const MaxInlineText = 30000

// Task names the four oracle operations; it also namespaces cache keys and logs.
type Task string

const (
	TaskTopics  Task = "topics"
	TaskQuiz    Task = "quiz"
	TaskExplain Task = "explain"
	TaskDoubt   Task = "doubt"
)

// Shape is the response-shape constraint attached to a request.
type Shape int

const (
	ShapeText Shape = iota
	ShapeStringList
	ShapeQuiz
)

// Request is everything a generator needs for one call.
type Request struct {
	Task        Task
	System      string
	Document    domain.DocumentPayload
	Instruction string
	Shape       Shape
}

// Generator sends a request to a generative-content provider and returns the raw text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// TransientError marks a provider failure worth retrying (rate limits, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// InlineText returns the document text as submitted: at most MaxInlineText characters.
func InlineText(text string) string {
	if len(text) <= MaxInlineText {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxInlineText {
		return text
	}
	return string(runes[:MaxInlineText])
}

// CacheKey identifies a request by content.
func CacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s\x00", req.Task, req.Shape, req.System, req.Instruction)
	switch doc := req.Document.(type) {
	case domain.TextDocument:
		fmt.Fprintf(h, "text\x00%s", InlineText(doc.Text))
	case domain.BinaryDocument:
		fmt.Fprintf(h, "binary\x00%s\x00%s", doc.MIMEType, doc.Data)
	}
	return string(req.Task) + ":" + hex.EncodeToString(h.Sum(nil))
}

// Cacheable reports whether a response may be reused for an identical request.
// Quizzes are regenerated on every start and unusable responses are never kept.
func Cacheable(req Request, text string) bool {
	switch req.Task {
	case TaskQuiz:
		return false
	case TaskTopics:
		_, err := parseTopics(text)
		return err == nil
	default:
		return strings.TrimSpace(text) != ""
	}
}
