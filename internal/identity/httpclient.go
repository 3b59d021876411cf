package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPLookupClient calls an external username directory over HTTPS. It
// is the production LookupClient; tests substitute a fake.
type HTTPLookupClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPLookupClient(baseURL string, httpClient *http.Client) *HTTPLookupClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPLookupClient{baseURL: baseURL, http: httpClient}
}

type lookupPayload struct {
	Exists        bool   `json:"exists"`
	CanonicalName string `json:"canonical_name"`
	PlatformID    string `json:"platform_id"`
}

func (c *HTTPLookupClient) Lookup(ctx context.Context, canonicalName string) (LookupResponse, error) {
	url := fmt.Sprintf("%s/users/%s", c.baseURL, canonicalName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return LookupResponse{}, fmt.Errorf("identity: build lookup request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return LookupResponse{}, fmt.Errorf("identity: lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return LookupResponse{Exists: false, CanonicalName: canonicalName}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return LookupResponse{}, fmt.Errorf("identity: lookup returned status %d", resp.StatusCode)
	}

	var payload lookupPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return LookupResponse{}, fmt.Errorf("identity: decode lookup response: %w", err)
	}
	return LookupResponse{Exists: payload.Exists, CanonicalName: payload.CanonicalName, PlatformID: payload.PlatformID}, nil
}
