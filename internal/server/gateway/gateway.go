// Package gateway is the proxied request pipeline: classify, resolve the
// credential, check revocation and policy, forward, and normalise failures.
package gateway

import (
	"context"
	"errors"
	"net/url"
	pathpkg "path"
	"strings"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	"github.com/dmitrijs2005/tornproxy/internal/server/upstream"
)

// CompanionPrefix routes inbound paths to the companion host. It is the
// companion resource name and is stripped before forwarding.
const CompanionPrefix = "/tornstats"

// CredentialResolver maps a proxy token to its credential and the decrypted
// real secret.
type CredentialResolver interface {
	Resolve(ctx context.Context, token string) (*models.ProxyCredential, string, error)
}

// Forwarder sends the rewritten request upstream.
type Forwarder interface {
	Forward(ctx context.Context, host upstream.Host, path string, query url.Values, secret string) (*upstream.Response, error)
}

type Gateway struct {
	resolver  CredentialResolver
	forwarder Forwarder
	policy    *Policy
	logger    logging.Logger
}

// New returns a Gateway using DefaultPolicy.
func New(resolver CredentialResolver, forwarder Forwarder, logger logging.Logger) *Gateway {
	return &Gateway{
		resolver:  resolver,
		forwarder: forwarder,
		policy:    DefaultPolicy,
		logger:    logger.With("module", "gateway"),
	}
}

// CleanPath resolves "." and ".." segments and duplicate slashes. A
// trailing slash is kept. The result always starts with "/".
func CleanPath(p string) string {
	cleaned := pathpkg.Clean("/" + p)
	if cleaned != "/" && strings.HasSuffix(p, "/") {
		cleaned += "/"
	}
	return cleaned
}

// HostFor picks the upstream host for an inbound path.
func HostFor(path string) upstream.Host {
	path = CleanPath(path)
	if path == CompanionPrefix || strings.HasPrefix(path, CompanionPrefix+"/") {
		return upstream.HostCompanion
	}
	return upstream.HostPrimary
}

// Handle runs the pipeline for an inbound path and query. Forwarding only
// happens for an existing, active credential whose policy admits the
// request. The path is cleaned first; policy and forwarding both use the
// cleaned path. Errors are meant for Normalize.
func (g *Gateway) Handle(ctx context.Context, path string, query url.Values) (*upstream.Response, error) {
	path = CleanPath(path)
	host := HostFor(path)
	req := Classify(path, query)

	token := query.Get(common.ProxyKeyQueryParam)
	if token == "" {
		return nil, common.ErrCredentialNotFound
	}

	cred, secret, err := g.resolver.Resolve(ctx, token)
	if err != nil {
		if !errors.Is(err, common.ErrCredentialNotFound) {
			g.logger.Error(ctx, "resolve failed", "error", err)
		}
		return nil, err
	}

	if cred.Revoked() {
		return nil, common.ErrCredentialRevoked
	}

	if err := g.policy.Authorize(cred.Permissions, req).Err(); err != nil {
		g.logger.Info(ctx, "request denied", "user_id", cred.UserID, "resource", req.Resource, "error", err)
		return nil, err
	}

	upstreamPath := path
	if host == upstream.HostCompanion {
		upstreamPath = strings.TrimPrefix(path, CompanionPrefix)
	}

	return g.forwarder.Forward(ctx, host, upstreamPath, query, secret)
}
