package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hireloop/hireloop/internal/domain"
)

// Provider is one upstream completion API.
type Provider interface {
	Name() string
	Complete(ctx domain.Context, prompt, system string) (string, error)
}

// errRateLimited marks a provider failure caused by throttling so the router
// can put the provider on cooldown.
var errRateLimited = errors.New("rate limited")

// geminiProvider speaks the Google generateContent API. Gemini has no system
// role on this endpoint, so the system instruction is prepended to the prompt
// as a single text block.
type geminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini builds the Gemini provider. baseURL overrides are for tests.
func NewGemini(apiKey, model, baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &geminiProvider{apiKey: apiKey, model: model, baseURL: baseURL, client: client}
}

func (g *geminiProvider) Name() string { return "gemini" }

func (g *geminiProvider) Complete(ctx domain.Context, prompt, system string) (string, error) {
	text := prompt
	if system != "" {
		text = system + "\n\n" + prompt
	}
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": text}}},
		},
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	raw, status, err := postJSON(ctx, g.client, url, nil, body)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if status == http.StatusTooManyRequests {
		return "", fmt.Errorf("gemini status %d: %w", status, errRateLimited)
	}

	var resp struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("gemini decode (status %d): %w", status, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini api: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates (status %d)", status)
	}
	// a 200 with no text is still a failure, the router should fall through
	text = resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("gemini: empty completion (status %d)", status)
	}
	return text, nil
}

// openAICompatProvider speaks the chat-completions shape shared by GitHub
// Models, Groq and OpenRouter.
type openAICompatProvider struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAICompat builds a chat-completions provider for the given endpoint.
func NewOpenAICompat(name, apiKey, model, baseURL string, client *http.Client) Provider {
	return &openAICompatProvider{name: name, apiKey: apiKey, model: model, baseURL: baseURL, client: client}
}

func (p *openAICompatProvider) Name() string { return p.name }

func (p *openAICompatProvider) Complete(ctx domain.Context, prompt, system string) (string, error) {
	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body := map[string]any{
		"model":    p.model,
		"messages": messages,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}

	raw, status, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", headers, body)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", p.name, err)
	}
	if status == http.StatusTooManyRequests {
		return "", fmt.Errorf("%s status %d: %w", p.name, status, errRateLimited)
	}

	var resp struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%s decode (status %d): %w", p.name, status, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s api: %s", p.name, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices (status %d)", p.name, status)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("%s: empty completion (status %d)", p.name, status)
	}
	return content, nil
}

// postJSON posts body as JSON and returns the response body regardless of
// status. Some providers return useful error JSON on non-2xx, so callers
// decode first and judge after.
func postJSON(ctx domain.Context, client *http.Client, url string, headers map[string]string, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return raw, resp.StatusCode, nil
}
