package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"study-companion/internal/domain"
	"study-companion/internal/logger"
	"study-companion/internal/oracle"
)

const documentPrefix = "Document Content: "

// Options configures the Gemini generator.
type Options struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// Generator implements oracle.Generator on top of the Gemini API.
type Generator struct {
	client *genai.Client
	opts   Options
	log    *zap.Logger
}

func NewGenerator(ctx context.Context, opts Options) (*Generator, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is not set")
	}
	if opts.Model == "" {
		return nil, errors.New("gemini: model is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Generator{
		client: client,
		opts:   opts,
		log:    logger.OrNop(opts.Logger).Named("gemini"),
	}, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

func (g *Generator) Generate(ctx context.Context, req oracle.Request) (string, error) {
	parts, err := buildParts(req)
	if err != nil {
		return "", err
	}

	// Models are cheap handles; a fresh one per call keeps settings from leaking
	// between concurrent requests.
	model := g.client.GenerativeModel(g.opts.Model)
	configureModel(model, req, g.opts.Temperature)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	text := responseText(resp)
	g.log.Debug("generated content",
		zap.String("task", string(req.Task)),
		zap.Int("chars", len(text)))
	return text, nil
}

func configureModel(model *genai.GenerativeModel, req oracle.Request, temperature float32) {
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if temperature > 0 {
		model.SetTemperature(temperature)
	}
	if schema := schemaFor(req.Shape); schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = schema
	}
}

// buildParts places the document first, then the task instruction.
func buildParts(req oracle.Request) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, 2)
	switch doc := req.Document.(type) {
	case domain.BinaryDocument:
		data, err := base64.StdEncoding.DecodeString(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("gemini: decode document: %w", err)
		}
		parts = append(parts, genai.Blob{MIMEType: doc.MIMEType, Data: data})
	case domain.TextDocument:
		parts = append(parts, genai.Text(documentPrefix+oracle.InlineText(doc.Text)))
	case nil:
	default:
		return nil, fmt.Errorf("gemini: unsupported document payload %T", doc)
	}
	return append(parts, genai.Text(req.Instruction)), nil
}

func schemaFor(shape oracle.Shape) *genai.Schema {
	switch shape {
	case oracle.ShapeStringList:
		return &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		}
	case oracle.ShapeQuiz:
		return &genai.Schema{
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"question": {Type: genai.TypeString},
					"options": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
					"correctAnswerIndex": {Type: genai.TypeInteger},
					"explanation":        {Type: genai.TypeString},
				},
				Required: []string{"question", "options", "correctAnswerIndex", "explanation"},
			},
		}
	default:
		return nil
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// classify marks rate limits and server-side failures as retryable.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return &oracle.TransientError{Err: err}
		}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
