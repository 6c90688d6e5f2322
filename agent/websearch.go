package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/model"
)

const (
	searchProbeTimeout   = 3 * time.Second
	searchRequestTimeout = 15 * time.Second
	maxSearchResults     = 10
)

// SearchResult is one entry returned by the search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Engine  string `json:"engine,omitempty"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// WebSearchAgent queries a SearXNG instance and summarizes the results with
// the model. Availability is probed once at construction; an unreachable
// backend makes the agent permanently unavailable for the process lifetime.
type WebSearchAgent struct {
	id        string
	models    ModelFactory
	baseURL   string
	chatDir   string
	client    *http.Client
	available bool
	logger    logging.Logger
}

// NewWebSearchAgent constructs the web search agent and probes the backend.
func NewWebSearchAgent(models ModelFactory, baseURL, chatDir string, logger logging.Logger) *WebSearchAgent {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	a := &WebSearchAgent{
		id:      "web_search_agent",
		models:  models,
		baseURL: strings.TrimRight(baseURL, "/"),
		chatDir: chatDir,
		client:  &http.Client{Timeout: searchRequestTimeout},
		logger:  logger,
	}
	a.available = a.probe()
	if !a.available {
		logger.Warn("search backend unreachable, web search disabled", "base_url", baseURL)
	}
	return a
}

// ID implements Agent.
func (a *WebSearchAgent) ID() string { return a.id }

// Available reports whether the search backend answered the startup probe.
func (a *WebSearchAgent) Available() bool { return a.available }

func (a *WebSearchAgent) probe() bool {
	if a.baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), searchProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/config", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Process runs one search and returns a summarized answer.
func (a *WebSearchAgent) Process(ctx context.Context, call core.ToolInvocation, parentID string) core.AgentResult {
	if !a.available {
		return core.UnavailableResult(a.id,
			"Web search is not enabled. The search backend could not be reached.",
			"search backend unavailable")
	}
	query := strings.TrimSpace(call.StringArg("query", ""))
	if query == "" {
		return core.FailedResult(a.id, "invalid tool call arguments: query is required")
	}
	categories := call.StringArg("categories", "general")

	results, err := a.search(ctx, query, categories)
	if err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("search request failed: %v", err))
	}
	if len(results) == 0 {
		return core.FailedResult(a.id, fmt.Sprintf("no search results for %q", query))
	}

	a.persistResults(parentID, query, results)

	summary := a.summarize(ctx, query, results)

	return core.AgentResult{
		AgentID:   a.id,
		Summary:   summary,
		Status:    core.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}
}

func (a *WebSearchAgent) search(ctx context.Context, query, categories string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", categories)
	params.Set("engines", "google,bing,duckduckgo")
	params.Set("safesearch", "1")
	params.Set("pageno", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("cannot decode search response: %w", err)
	}

	results := parsed.Results
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	for i := range results {
		results[i].Content = excerpt(results[i].Content, 500)
	}
	return results, nil
}

// persistResults stores the raw result set alongside the conversation so
// summaries stay auditable. Failures are logged, not surfaced.
func (a *WebSearchAgent) persistResults(parentID, query string, results []SearchResult) {
	if parentID == "" || a.chatDir == "" {
		return
	}
	folder := filepath.Join(a.chatDir, parentID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		a.logger.Error("cannot create search result folder", "error", err)
		return
	}
	payload := map[string]any{
		"query":     query,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"results":   results,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(folder, fmt.Sprintf("search_%s.json", core.ShortID()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		a.logger.Error("cannot persist search results", "error", err)
	}
}

// summarize condenses the result set with the model, falling back to the
// top result when the model is misconfigured or errors.
func (a *WebSearchAgent) summarize(ctx context.Context, query string, results []SearchResult) string {
	fallback := fmt.Sprintf("%s\n%s\n%s", results[0].Title, results[0].URL, results[0].Content)

	mdl, err := a.models()
	if err != nil {
		a.logger.Warn("model unavailable for search summary", "error", err)
		return fallback
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nResults:\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}

	resp, err := mdl.Generate(ctx, model.Request{
		Instructions: searchSummaryInstructions,
		Contents:     []core.Content{core.TextContent("user", sb.String())},
		MaxTokens:    800,
	})
	if err != nil || strings.TrimSpace(resp.Text()) == "" {
		a.logger.Warn("search summary call failed", "error", err)
		return fallback
	}
	return resp.Text()
}
