package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brane-run/brane/wir"
)

// Client submits a checker workflow to a domain's checker and returns its
// verdict. Planner and VM code depend on this narrow interface rather than
// *HTTPClient directly, so tests can fake checker responses (spec.md §4.9).
type Client interface {
	Check(ctx context.Context, domain wir.Location, cw *CheckerWorkflow) (CheckReply, error)
}

// AddressBook resolves a domain to its checker's base URL (e.g.
// "https://checker.site-a.example/"). Backed in production by the registry
// client's infra lookup (SPEC_FULL.md §4.7).
type AddressBook interface {
	CheckerAddress(ctx context.Context, domain wir.Location) (string, error)
}

// HTTPClient is the production Client: it mints a short-lived bearer token
// per request and POSTs the checker workflow to the domain's /v1/check
// endpoint (spec.md §4.9, SPEC_FULL.md §4.9).
type HTTPClient struct {
	HTTP     *http.Client
	Keys     *KeySet
	Username string
	System   string
	TTL      time.Duration
	Addrs    AddressBook
}

// NewHTTPClient constructs an HTTPClient with sensible defaults.
func NewHTTPClient(keys *KeySet, username, system string, addrs AddressBook) *HTTPClient {
	return &HTTPClient{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Keys:     keys,
		Username: username,
		System:   system,
		TTL:      60 * time.Second,
		Addrs:    addrs,
	}
}

func (c *HTTPClient) Check(ctx context.Context, domain wir.Location, cw *CheckerWorkflow) (CheckReply, error) {
	base, err := c.Addrs.CheckerAddress(ctx, domain)
	if err != nil {
		return CheckReply{}, fmt.Errorf("checker: resolving address for %q: %w", domain, err)
	}
	token, err := c.Keys.Mint(c.Username, c.System, c.TTL)
	if err != nil {
		return CheckReply{}, fmt.Errorf("checker: minting token: %w", err)
	}
	body, err := json.Marshal(CheckRequest{Workflow: cw})
	if err != nil {
		return CheckReply{}, fmt.Errorf("checker: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/check", bytes.NewReader(body))
	if err != nil {
		return CheckReply{}, fmt.Errorf("checker: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return CheckReply{}, fmt.Errorf("checker: calling %q: %w", domain, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CheckReply{}, fmt.Errorf("checker: reading response from %q: %w", domain, err)
	}
	if resp.StatusCode != http.StatusOK {
		return CheckReply{}, fmt.Errorf("checker: %q returned %s: %s", domain, resp.Status, respBody)
	}
	var reply CheckReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return CheckReply{}, fmt.Errorf("checker: decoding response from %q: %w", domain, err)
	}
	return reply, nil
}
