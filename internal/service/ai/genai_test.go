package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memodraft/internal/models"
)

func newTestGenAI(t *testing.T, handler http.HandlerFunc) *GenAIGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewGenAIGateway(context.Background(), GenAIOptions{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: srv.URL,
	}, nil)
	require.NoError(t, err)
	return g
}

func candidate(text string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + quote(text) + `}]}}]}`
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func testDoc(name, mime, content string) models.UploadedDocument {
	return models.UploadedDocument{
		Name:     name,
		MimeType: mime,
		Payload:  base64.StdEncoding.EncodeToString([]byte(content)),
		Size:     int64(len(content)),
	}
}

func TestGenAIGenerateSectionSendsInlineDocuments(t *testing.T) {
	var body string
	g := newTestGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, candidate("  ## 4. Financial Analysis\nRevenue grew 12%.\n  "))
	})

	docs := []models.UploadedDocument{testDoc("q3.pdf", "application/pdf", "%PDF-1.4 numbers")}
	out, err := g.GenerateSection(context.Background(), "4. Financial Analysis", docs, "guide text")
	require.NoError(t, err)
	assert.Equal(t, "## 4. Financial Analysis\nRevenue grew 12%.", out)

	assert.Contains(t, body, "inlineData")
	assert.Contains(t, body, "application/pdf")
	assert.Contains(t, body, docs[0].Payload)
	assert.Contains(t, body, "guide text")
	assert.Contains(t, body, "## 4. Financial Analysis")
}

func TestGenAIChatReply(t *testing.T) {
	g := newTestGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, candidate("Net income was $2M."))
	})
	out, err := g.GenerateChatReply(context.Background(), "What was net income?", []models.UploadedDocument{testDoc("a.txt", "text/plain", "x")})
	require.NoError(t, err)
	assert.Equal(t, "Net income was $2M.", out)
}

func TestGenAIServerErrorIsGatewayError(t *testing.T) {
	g := newTestGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"code":500,"message":"backend exploded","status":"INTERNAL"}}`)
	})
	_, err := g.GenerateChatReply(context.Background(), "hi", nil)
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, OpChatReply, gwErr.Op)
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestGenAIEmptyResponseIsGatewayError(t *testing.T) {
	g := newTestGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})
	_, err := g.GenerateSection(context.Background(), "1. Executive Summary", nil, "")
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.ErrorIs(t, err, errEmptyResponse)
}
