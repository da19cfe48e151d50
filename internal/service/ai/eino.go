package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"memodraft/internal/config"
	"memodraft/internal/documents"
	"memodraft/internal/models"
)

// EinoGateway drives any eino chat model. Documents are flattened into the
// prompt: images become image parts, everything else is extracted as text.
type EinoGateway struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	parser    parser.Parser
	timeout   time.Duration
	log       *zap.Logger
}

type EinoOptions struct {
	// Tools enables a ReAct agent for chat replies when non-empty.
	Tools   []tool.BaseTool
	Timeout time.Duration
}

func NewEinoGateway(ctx context.Context, chatModel model.ToolCallingChatModel, opts EinoOptions, log *zap.Logger) (*EinoGateway, error) {
	if chatModel == nil {
		return nil, errors.New("eino: chat model is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("eino: init parser: %w", err)
	}
	g := &EinoGateway{
		chatModel: chatModel,
		parser:    extParser,
		timeout:   opts.Timeout,
		log:       log.With(zap.String("component", "eino")),
	}
	if len(opts.Tools) > 0 {
		g.agent, err = react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: opts.Tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("eino: init react agent: %w", err)
		}
	}
	return g, nil
}

// newChatModel builds the provider-specific eino chat model.
func newChatModel(ctx context.Context, provider string, cfg config.AIConfig) (model.ToolCallingChatModel, error) {
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
		if cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 3000
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

func (g *EinoGateway) GenerateSection(ctx context.Context, title string, docs []models.UploadedDocument, guide string) (string, error) {
	msgs, err := g.buildMessages(ctx, sectionSystemPrompt, sectionPrompt(title, guide), docs)
	if err != nil {
		return finish(OpGenerateSection, "", err)
	}
	text, err := g.run(ctx, msgs, false)
	return finish(OpGenerateSection, text, err)
}

func (g *EinoGateway) GenerateChatReply(ctx context.Context, message string, docs []models.UploadedDocument) (string, error) {
	msgs, err := g.buildMessages(ctx, chatSystemPrompt, chatPrompt(message), docs)
	if err != nil {
		return finish(OpChatReply, "", err)
	}
	text, err := g.run(ctx, msgs, true)
	return finish(OpChatReply, text, err)
}

func (g *EinoGateway) run(ctx context.Context, msgs []*schema.Message, useAgent bool) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	var (
		out *schema.Message
		err error
	)
	start := time.Now()
	if useAgent && g.agent != nil {
		out, err = g.agent.Generate(ctx, msgs)
	} else {
		out, err = g.chatModel.Generate(ctx, msgs)
	}
	if err != nil {
		g.log.Warn("generate failed", zap.Bool("agent", useAgent && g.agent != nil), zap.Error(err))
		return "", err
	}
	g.log.Debug("generate", zap.Duration("elapsed", time.Since(start)))
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

func (g *EinoGateway) buildMessages(ctx context.Context, system, prompt string, docs []models.UploadedDocument) ([]*schema.Message, error) {
	var (
		text   strings.Builder
		images []schema.ChatMessagePart
	)
	for i, doc := range docs {
		data, err := documents.Decode(doc)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(doc.MimeType, "image/") {
			images = append(images, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      "data:" + doc.MimeType + ";base64," + doc.Payload,
					MIMEType: doc.MimeType,
				},
			})
			fmt.Fprintf(&text, "Document %d: %s (%s) is attached as an image.\n\n", i+1, doc.Name, doc.MimeType)
			continue
		}
		content, err := g.extract(ctx, doc, data)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", doc.Name, err)
		}
		fmt.Fprintf(&text, "Document %d: %s (%s)\n<<<\n%s\n>>>\n\n", i+1, doc.Name, doc.MimeType, content)
	}
	text.WriteString(prompt)

	user := &schema.Message{Role: schema.User}
	if len(images) == 0 {
		user.Content = text.String()
	} else {
		user.MultiContent = append([]schema.ChatMessagePart{{
			Type: schema.ChatMessagePartTypeText,
			Text: text.String(),
		}}, images...)
	}
	return []*schema.Message{schema.SystemMessage(system), user}, nil
}

// extract returns the readable text of a non-image document.
func (g *EinoGateway) extract(ctx context.Context, doc models.UploadedDocument, data []byte) (string, error) {
	if isPlainText(doc.MimeType) {
		return string(data), nil
	}
	parsed, err := g.parser.Parse(ctx, bytes.NewReader(data), parser.WithURI(doc.Name))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, d := range parsed {
		if d == nil {
			continue
		}
		b.WriteString(strings.TrimSpace(d.Content))
		b.WriteString("\n")
	}
	content := strings.TrimSpace(b.String())
	if !utf8.ValidString(content) {
		return fmt.Sprintf("[binary content, %d bytes, not extractable as text]", len(data)), nil
	}
	return content, nil
}

func isPlainText(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml", mediaType == "application/csv":
		return true
	}
	return false
}
