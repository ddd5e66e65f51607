// Package ollama provides an adapter for the Ollama LLM service.
// It interprets free-text descriptions of what a user is looking for by
// sending them to a local Ollama instance and parsing the structured JSON
// response into a domain.VibeFilter.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/logging"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "deepseek-r1:8b"
	defaultTimeout = 30 * time.Second
	maxVibeLength  = 500
)

const systemPrompt = "You are the Duet Vibe Engine. Your goal is to translate what a person is looking for in someone else's music taste into a structured JSON 'VibeFilter'.\n\nRules:\nReasoning: Map stylistic requests (e.g., 'someone into quiet acoustic stuff') to technical constraints (e.g., 'acousticness.min: 0.7', 'energy.max: 0.4').\nEntities: Extract specific genres mentioned into 'genres'.\nOutput: Return ONLY a valid JSON object with keys 'genres', 'vibe_constraints' and 'explanation'. No conversational text.\nConstraint keys: energy, valence, danceability, acousticness, instrumentalness. Each has optional 'min', 'max', 'target' between 0.0 and 1.0 and a 'weight' of LOW, MEDIUM or HIGH.\nExample Mapping: 'someone who likes sad indie' -> { 'genres': ['indie'], 'vibe_constraints': { 'valence': {'target': 0.25, 'weight': 'MEDIUM'} }, 'explanation': 'low valence indie' }"

// Options configures the client. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ ports.VibeInterpreter = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// InterpretVibe asks the model for a filter matching the description.
func (c *Client) InterpretVibe(ctx context.Context, text string) (domain.VibeFilter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.VibeFilter{}, fmt.Errorf("ollama: %w: empty vibe", domain.ErrInvalidArgument)
	}
	if len(text) > maxVibeLength {
		return domain.VibeFilter{}, fmt.Errorf("ollama: %w: vibe longer than %d bytes", domain.ErrInvalidArgument, maxVibeLength)
	}

	payload := chatRequest{
		Model:  c.model,
		Stream: false,
		Format: "json",
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.VibeFilter{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return domain.VibeFilter{}, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.VibeFilter{}, fmt.Errorf("ollama: request failed: %w: %w", ports.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.VibeFilter{}, fmt.Errorf("ollama: %w: unexpected status %d", ports.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.VibeFilter{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	if parsed.Error != "" {
		return domain.VibeFilter{}, fmt.Errorf("ollama: %w: %s", ports.ErrUpstreamUnavailable, parsed.Error)
	}

	content := extractJSONObject(parsed.Message.Content)
	if content == "" {
		return domain.VibeFilter{}, fmt.Errorf("ollama: %w: empty response", ports.ErrUpstreamUnavailable)
	}

	var filter domain.VibeFilter
	if err := json.Unmarshal([]byte(content), &filter); err != nil {
		return domain.VibeFilter{}, fmt.Errorf("ollama: decode vibe: %w", err)
	}
	sanitize(&filter)

	logging.Ctx(ctx).Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Strs("genres", filter.Genres).
		Msg("vibe interpreted")
	return filter, nil
}

// extractJSONObject drops reasoning text some models emit around the
// JSON object, such as a leading <think> block.
func extractJSONObject(s string) string {
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// sanitize clamps model output into the ranges the filter understands.
func sanitize(f *domain.VibeFilter) {
	c := &f.Constraints
	for _, vc := range []*domain.VibeConstraint{c.Energy, c.Valence, c.Danceability, c.Acoustic, c.Instrument} {
		if vc == nil {
			continue
		}
		vc.Min = clamp01(vc.Min)
		vc.Max = clamp01(vc.Max)
		vc.Target = clamp01(vc.Target)
		if vc.Max > 0 && vc.Min > vc.Max {
			vc.Min, vc.Max = vc.Max, vc.Min
		}
	}

	genres := f.Genres[:0]
	for _, g := range f.Genres {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	f.Genres = genres
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
