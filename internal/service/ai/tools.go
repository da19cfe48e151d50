package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"memodraft/internal/config"
)

var errNoSearchProvider = errors.New("no search provider succeeded")

// searchProvider is one backend of the web_search tool, tried in order.
type searchProvider struct {
	name string
	tool tool.InvokableTool
}

// ChatTools returns the tools offered to the chat agent: nothing unless web
// search is enabled and at least one provider could be built.
func ChatTools(ctx context.Context, cfg config.AIConfig, log *zap.Logger) []tool.BaseTool {
	if !cfg.WebSearch {
		return nil
	}
	providers := searchProviders(ctx, cfg, log)
	if len(providers) == 0 {
		log.Warn("web search disabled: no search provider available")
		return nil
	}
	return []tool.BaseTool{newWebSearchTool(providers, log)}
}

// searchProviders builds Google CSE first, when keyed, then DuckDuckGo.
func searchProviders(ctx context.Context, cfg config.AIConfig, log *zap.Logger) []searchProvider {
	var out []searchProvider
	if cfg.GoogleAPIKey != "" && cfg.GoogleEngineID != "" {
		g, err := googlesearch.NewTool(ctx, &googlesearch.Config{
			ToolName:       "web_search_google",
			ToolDesc:       "Google Custom Search",
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleEngineID,
			Lang:           "en",
			Num:            5,
		})
		if err != nil {
			log.Warn("google search unavailable", zap.Error(err))
		} else {
			out = append(out, searchProvider{name: "google", tool: g})
		}
	}
	ddg, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo text search",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		log.Warn("duckduckgo search unavailable", zap.Error(err))
	} else {
		out = append(out, searchProvider{name: "duckduckgo", tool: ddg})
	}
	return out
}

type webSearchTool struct {
	providers  []searchProvider
	httpClient *http.Client
	limiter    *toolRateLimiter
	log        *zap.Logger
}

type webSearchParams struct {
	Query string `json:"query"`
}

var webSearchInfo = &schema.ToolInfo{
	Name: "web_search",
	Desc: "Search the web for public information about a borrower, its industry or market conditions. " +
		"Pass a URL to read that page instead.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"query": {
			Desc:     "search query or http(s) URL",
			Type:     schema.String,
			Required: true,
		},
	}),
}

func newWebSearchTool(providers []searchProvider, log *zap.Logger) tool.InvokableTool {
	ws := &webSearchTool{
		providers:  providers,
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    newToolRateLimiter(WebSearchRateLimit, WebSearchRateWindow),
		log:        log.With(zap.String("tool", "web_search")),
	}
	return utils.NewTool(webSearchInfo, ws.run)
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Query) == "" {
		return "", errors.New("query must not be empty")
	}
	query := strings.TrimSpace(params.Query)

	key := "anonymous"
	if id, ok := ToolSessionFromContext(ctx); ok {
		key = id
	}
	if !w.limiter.Allow(key) {
		return "", fmt.Errorf("web search limited to %d calls per %s, retry later", WebSearchRateLimit, WebSearchRateWindow)
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		w.log.Warn("url fetch failed, searching instead", zap.String("url", query), zap.Error(err))
	}

	args, err := json.Marshal(webSearchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("encode search args: %w", err)
	}
	var errs []error
	for _, p := range w.providers {
		out, err := p.tool.InvokableRun(ctx, string(args))
		if err == nil {
			return out, nil
		}
		w.log.Warn("search provider failed", zap.String("provider", p.name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}
	return "", errors.Join(append([]error{errNoSearchProvider}, errs...)...)
}
