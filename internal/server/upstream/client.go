// Package upstream talks to the real API hosts: it forwards proxied calls
// with the real secret substituted and checks secrets during owner
// authentication.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
)

// Host names one of the fixed upstream hosts.
type Host string

const (
	HostPrimary   Host = "primary"
	HostCompanion Host = "companion"
)

const (
	DefaultPrimaryURL   = "https://api.torn.com"
	DefaultCompanionURL = "https://www.tornstats.com"

	maxBodyBytes = 16 << 20
)

// Response is an upstream reply relayed to the proxy caller as is.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Identity is the subset of the upstream basic user profile the proxy keeps.
type Identity struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
}

// Client forwards requests to the host table. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	hosts      map[Host]*url.URL
	logger     logging.Logger
}

// NewClient parses the host base URLs. Empty URLs fall back to the public
// hosts. timeout bounds every call, including reading the body.
func NewClient(primaryURL, companionURL string, timeout time.Duration, logger logging.Logger) (*Client, error) {
	if primaryURL == "" {
		primaryURL = DefaultPrimaryURL
	}
	if companionURL == "" {
		companionURL = DefaultCompanionURL
	}

	hosts := make(map[Host]*url.URL, 2)
	for h, raw := range map[Host]string{HostPrimary: primaryURL, HostCompanion: companionURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid %s upstream url %q", h, raw)
		}
		hosts[h] = u
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		hosts:      hosts,
		logger:     logger.With("module", "upstream"),
	}, nil
}

// BuildURL returns the upstream URL for path on host with the key query
// parameter replaced by secret. Other parameters are kept.
func (c *Client) BuildURL(host Host, path string, query url.Values, secret string) (*url.URL, error) {
	base, ok := c.hosts[host]
	if !ok {
		return nil, fmt.Errorf("unknown upstream host %q", host)
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(common.ProxyKeyQueryParam, secret)

	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	u.RawQuery = q.Encode()
	return &u, nil
}

// Forward performs a GET against host. 2xx replies and non-2xx replies with
// a JSON body are returned. Anything else wraps common.ErrUpstreamForward.
func (c *Client) Forward(ctx context.Context, host Host, path string, query url.Values, secret string) (*Response, error) {
	u, err := c.BuildURL(host, path, query, secret)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, u)
	if err != nil {
		c.logger.Warn(ctx, "upstream call failed", "host", string(host), "path", path, "error", err)
		return nil, err
	}

	if resp.StatusCode/100 != 2 && !json.Valid(resp.Body) {
		c.logger.Warn(ctx, "upstream returned non-json failure", "host", string(host), "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", common.ErrUpstreamForward, resp.StatusCode)
	}

	return resp, nil
}

// Identify checks secret against the primary host's basic user profile.
// An upstream error object yields *common.UpstreamAuthError with that object
// as payload.
func (c *Client) Identify(ctx context.Context, secret string) (*Identity, error) {
	q := url.Values{"selections": []string{"basic"}}
	u, err := c.BuildURL(HostPrimary, "/user/", q, secret)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}

	var body struct {
		Error json.RawMessage `json:"error"`
		Identity
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: bad identity body: %v", common.ErrUpstreamForward, err)
	}

	if len(body.Error) > 0 && string(body.Error) != "null" {
		return nil, &common.UpstreamAuthError{Payload: body.Error}
	}

	if body.PlayerID == 0 {
		return nil, fmt.Errorf("%w: identity without player id", common.ErrUpstreamForward)
	}

	return &body.Identity, nil
}

func (c *Client) do(ctx context.Context, u *url.URL) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamForward, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamForward, stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", common.ErrUpstreamForward, stripURL(err))
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// stripURL drops the request URL from transport errors; it carries the secret.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
