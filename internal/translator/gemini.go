package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

const systemPrompt = `You analyse messages about school grades written in Portuguese or English.
Extract the INTENT and ENTITIES of the message.

Intents: add_grade, update_grade, query_grades, summary, class_report, fallback.
Any request to delete, remove or erase grades must use the intent "delete_grade".

Entities, only when present in the message:
student_id (number), student_name (a person's name), grade_id (number), value (number),
subject_id (number), class_id (number), class_name (e.g. "10A"), module (e.g. "Módulo 1"),
description (e.g. "Teste 1").

Never invent ids. If the message names a student without an id, use student_name.

Reply with JSON only: {"intent": "...", "entities": {...}, "confidence": "high|medium|low"}`

// generator is the part of genai.GenerativeModel the translator uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini translates with a Gemini model and falls back on any model error.
type Gemini struct {
	model    generator
	client   *genai.Client
	fallback Translator
	logger   *slog.Logger

	// Timeout bounds one model call; zero leaves the caller's deadline.
	Timeout time.Duration
}

// NewGemini connects to the Gemini API.
func NewGemini(ctx context.Context, apiKey, modelName string, fallback Translator, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	g := newGemini(model, fallback, logger)
	g.client = client
	return g, nil
}

func newGemini(model generator, fallback Translator, logger *slog.Logger) *Gemini {
	if fallback == nil {
		fallback = Rules{}
	}
	return &Gemini{model: model, fallback: fallback, logger: logger}
}

// Close releases the API client.
func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Translate implements Translator.
func (g *Gemini) Translate(ctx context.Context, text string) (intent.Intent, error) {
	in, err := g.generate(ctx, text)
	if err == nil {
		return in, nil
	}
	if g.logger != nil {
		g.logger.Warn("gemini translation failed, using rules", "error", err)
	}
	return g.fallback.Translate(ctx, text)
}

func (g *Gemini) generate(ctx context.Context, text string) (intent.Intent, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	var out strings.Builder
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if txt, ok := part.(genai.Text); ok {
					out.WriteString(string(txt))
				}
			}
			break
		}
	}
	body := strings.TrimSpace(out.String())
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	if body == "" {
		return nil, errors.New("empty model response")
	}
	in, _, err := intent.DecodeJSON([]byte(body))
	if err != nil {
		return nil, err
	}
	return in, nil
}
