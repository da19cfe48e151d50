// Package contextguide loads the credit memo guide that is handed to the model
// with every section request.
package contextguide

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"go.uber.org/zap"
)

const (
	LoadingText = "Loading context..."
	FailedText  = "Failed to load context guide. Please check the file path and network."
)

var ErrLoadFailed = errors.New("context guide load failed")

const maxGuideBytes = 1 << 20

// Guide holds the shared guide text. It reads LoadingText until the single
// startup fetch settles, then either the fetched text or FailedText.
type Guide struct {
	source  string
	timeout time.Duration
	client  *http.Client
	log     *zap.Logger

	once sync.Once
	done chan struct{}

	mu   sync.RWMutex
	text string
	err  error
}

func New(source string, timeout time.Duration, log *zap.Logger) *Guide {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Guide{
		source:  source,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		log:     log.With(zap.String("component", "contextguide")),
		done:    make(chan struct{}),
		text:    LoadingText,
	}
}

// Static returns a guide that is already settled with text.
func Static(text string) *Guide {
	g := New("", 0, nil)
	g.text = text
	g.once.Do(func() { close(g.done) })
	return g
}

// Start launches the fetch in the background. Later calls are no-ops.
func (g *Guide) Start(ctx context.Context) {
	g.once.Do(func() {
		go func() {
			defer close(g.done)
			ctx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			text, err := g.fetch(ctx)
			g.settle(text, err)
		}()
	})
}

func (g *Guide) settle(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.err = fmt.Errorf("%w: %v", ErrLoadFailed, err)
		g.text = FailedText
		g.log.Error("load context guide", zap.String("source", g.source), zap.Error(err))
		return
	}
	g.text = text
	g.log.Info("context guide loaded", zap.String("source", g.source), zap.Int("bytes", len(text)))
}

func (g *Guide) Text() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.text
}

// Err reports the load failure, if any, wrapped around ErrLoadFailed.
func (g *Guide) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

// Done is closed once the fetch has settled.
func (g *Guide) Done() <-chan struct{} { return g.done }

func (g *Guide) fetch(ctx context.Context) (string, error) {
	if strings.TrimSpace(g.source) == "" {
		return "", errors.New("no source configured")
	}
	lower := strings.ToLower(g.source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return g.fetchHTTP(ctx)
	}
	return g.fetchFile(ctx)
}

func (g *Guide) fetchHTTP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.source, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %s", g.source, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGuideBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (g *Guide) fetchFile(ctx context.Context) (string, error) {
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return "", err
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return "", err
	}
	docs, err := loader.Load(ctx, document.Source{URI: g.source})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		b.WriteString(doc.Content)
	}
	return b.String(), nil
}
