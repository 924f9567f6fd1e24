// internal/client/gateway.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// ErrAuthExpired is the terminal authentication failure: the one permitted
// refresh has been spent (or was impossible) and the caller must restart
// login. The gateway never redirects; that is the route guard's job.
var ErrAuthExpired = errors.New("authentication expired")

// Request describes one outbound API call through the gateway.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header

	// SkipAuth opts this call out of bearer attachment and refresh-retry
	// (login and refresh endpoints themselves).
	SkipAuth bool
}

// Gateway attaches the stored bearer token to outgoing calls and performs a
// bounded one-shot refresh-and-retry on authorization failure. The retry
// budget is an explicit parameter threaded through the call, never implicit
// call-stack state.
type Gateway struct {
	http       *http.Client
	storage    TokenStorage
	refreshURL string
	logger     *zap.Logger
}

func NewGateway(httpClient *http.Client, storage TokenStorage, refreshURL string, logger *zap.Logger) *Gateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Gateway{
		http:       httpClient,
		storage:    storage,
		refreshURL: refreshURL,
		logger:     logger,
	}
}

// Do issues the call. On a 401 the gateway refreshes the token pair exactly
// once and re-issues the original call once; every other failure is surfaced
// unchanged. Callers own the response body.
func (g *Gateway) Do(ctx context.Context, req *Request) (*http.Response, error) {
	return g.do(ctx, req, 0)
}

func (g *Gateway) do(ctx context.Context, req *Request, attempt int) (*http.Response, error) {
	httpReq, err := g.build(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if req.SkipAuth || resp.StatusCode != http.StatusUnauthorized || attempt > 0 {
		return resp, nil
	}

	// One refresh per original call. The retry below runs with attempt=1,
	// so its own 401 falls through to the caller.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := g.refresh(ctx); err != nil {
		return nil, err
	}

	return g.do(ctx, req, attempt+1)
}

func (g *Gateway) build(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if !req.SkipAuth {
		if pair, ok := g.storage.Get(); ok && pair.AccessToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		}
	}

	return httpReq, nil
}

// refreshResponse is the envelope the auth API wraps refresh results in.
type refreshResponse struct {
	Success bool `json:"success"`
	Data    struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	} `json:"data"`
}

func (g *Gateway) refresh(ctx context.Context) error {
	pair, ok := g.storage.Get()
	if !ok || pair.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token available", ErrAuthExpired)
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": pair.RefreshToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: refresh call failed: %v", ErrAuthExpired, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		g.storage.Clear()
		return fmt.Errorf("%w: refresh rejected with status %d", ErrAuthExpired, resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("%w: malformed refresh response: %v", ErrAuthExpired, err)
	}
	if parsed.Data.AccessToken == "" {
		return fmt.Errorf("%w: refresh response missing tokens", ErrAuthExpired)
	}

	g.storage.Set(TokenPair{
		AccessToken:  parsed.Data.AccessToken,
		RefreshToken: parsed.Data.RefreshToken,
		ExpiresIn:    parsed.Data.ExpiresIn,
	})

	g.logger.Debug("token pair refreshed")
	return nil
}
