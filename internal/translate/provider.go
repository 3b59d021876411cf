package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTPProvider calls a REST translation backend that accepts a
// source/target/text form POST and returns a JSON body carrying the
// translated text and a confidence score. It is generic enough to front
// any of the configured provider names; each one differs only by
// endpoint and credential.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(name, endpoint, apiKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPProvider{name: name, endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}
}

func (p *HTTPProvider) Name() string { return p.name }

type providerResponse struct {
	TranslatedText string  `json:"translated_text"`
	Confidence     float64 `json:"confidence"`
}

func (p *HTTPProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, float64, error) {
	form := url.Values{
		"q":      {text},
		"source": {sourceLang},
		"target": {targetLang},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("translate: build request for %s: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("translate: %s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("translate: %s returned status %d", p.name, resp.StatusCode)
	}

	var out providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("translate: %s decode response: %w", p.name, err)
	}
	return out.TranslatedText, out.Confidence, nil
}
