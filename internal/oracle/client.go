package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client issues generation and chat requests against the proxy.
type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 120 * time.Second},
	}
}

// Config fetches the startup configuration. Callers treat failure as fatal.
func (c *Client) Config(ctx context.Context) (ClientConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/config", nil)
	if err != nil {
		return ClientConfig{}, errors.Wrap(err, "build config request")
	}
	var cfg ClientConfig
	if err := c.do(req, &cfg); err != nil {
		return ClientConfig{}, errors.Wrap(err, "fetch config")
	}
	return cfg, nil
}

// Generate runs one-shot generation, optionally grounded or schema-bound.
func (c *Client) Generate(ctx context.Context, in GenerateRequest) (GenerateResponse, error) {
	var out GenerateResponse
	if err := c.post(ctx, "/api/generate", in, &out); err != nil {
		return GenerateResponse{}, err
	}
	return out, nil
}

// Chat sends the full prior history plus the new turn.
func (c *Client) Chat(ctx context.Context, in ChatRequest) (ChatResponse, error) {
	var out ChatResponse
	if err := c.post(ctx, "/api/chat", in, &out); err != nil {
		return ChatResponse{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, route string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+route, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "oracle request")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read oracle response")
	}
	if resp.StatusCode != http.StatusOK {
		var ep errorPayload
		if json.Unmarshal(raw, &ep) == nil && ep.Error != "" {
			return errors.Errorf("oracle: %s", ep.Error)
		}
		return errors.Errorf("oracle: unexpected status %d", resp.StatusCode)
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decode oracle response")
}
