package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"memodraft/internal/documents"
	"memodraft/internal/models"
)

// GenAIGateway talks to Gemini directly and forwards every document as an
// inline part carrying its original bytes and MIME type.
type GenAIGateway struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         *zap.Logger
}

type GenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func NewGenAIGateway(ctx context.Context, opts GenAIOptions, log *zap.Logger) (*GenAIGateway, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("genai: model is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GenAIGateway{
		client:      client,
		model:       opts.Model,
		temperature: 0.2,
		timeout:     opts.Timeout,
		log:         log.With(zap.String("component", "genai")),
	}, nil
}

func (g *GenAIGateway) GenerateSection(ctx context.Context, title string, docs []models.UploadedDocument, guide string) (string, error) {
	text, err := g.generate(ctx, sectionSystemPrompt, sectionPrompt(title, guide), docs)
	return finish(OpGenerateSection, text, err)
}

func (g *GenAIGateway) GenerateChatReply(ctx context.Context, message string, docs []models.UploadedDocument) (string, error) {
	text, err := g.generate(ctx, chatSystemPrompt, chatPrompt(message), docs)
	return finish(OpChatReply, text, err)
}

func (g *GenAIGateway) generate(ctx context.Context, system, prompt string, docs []models.UploadedDocument) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	parts := make([]*genai.Part, 0, len(docs)+1)
	for _, doc := range docs {
		data, err := documents.Decode(doc)
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromBytes(data, doc.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		g.log.Warn("generate content failed", zap.String("model", g.model), zap.Error(err))
		return "", err
	}
	g.log.Debug("generate content",
		zap.String("model", g.model),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Text(), nil
}
