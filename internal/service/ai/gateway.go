package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memodraft/internal/models"
)

// Gateway is the boundary to the text generation service. Implementations are
// stateless and never retry.
type Gateway interface {
	GenerateSection(ctx context.Context, title string, docs []models.UploadedDocument, guide string) (string, error)
	GenerateChatReply(ctx context.Context, message string, docs []models.UploadedDocument) (string, error)
}

const (
	OpGenerateSection = "generate section"
	OpChatReply       = "chat reply"
)

var errEmptyResponse = errors.New("model returned an empty response")

// GatewayError wraps any failure reported by a Gateway.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// WrapError wraps err as a *GatewayError unless it already is one.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

// finish trims a raw model response and rejects blank output.
func finish(op, text string, err error) (string, error) {
	if err != nil {
		return "", WrapError(op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", WrapError(op, errEmptyResponse)
	}
	return text, nil
}

const sectionSystemPrompt = `You are a senior credit analyst drafting a commercial loan credit memo.
Write only from the supplied financial documents. When a figure is missing, say so instead of estimating it.
Use concise professional language and Markdown formatting.`

const chatSystemPrompt = `You are an assistant helping a credit analyst understand the financial documents they uploaded.
Answer the question directly, cite the document a figure came from, and say when the documents do not contain the answer.`

func sectionPrompt(title, guide string) string {
	var b strings.Builder
	if g := strings.TrimSpace(guide); g != "" {
		b.WriteString("Follow this credit memo guide:\n\n")
		b.WriteString(g)
		b.WriteString("\n\n---\n\n")
	}
	fmt.Fprintf(&b, "Draft the %q section of the credit memo using the attached documents.\n", title)
	fmt.Fprintf(&b, "The response must begin with the line \"## %s\" followed by the section body. ", title)
	b.WriteString("Do not include any other sections or any preamble.")
	return b.String()
}

func chatPrompt(message string) string {
	return "Question about the attached documents:\n\n" + message
}
