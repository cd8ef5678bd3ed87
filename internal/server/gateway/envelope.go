package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/server/upstream"
)

// Proxy failure codes reported in proxy_code.
const (
	ProxyCodeForward    = 0
	ProxyCodeNotFound   = 1
	ProxyCodeRevoked    = 2
	ProxyCodeNoAccess   = 3
	companionErrorField = "ERROR: (tornstats error would go here if only it would make a bit more sense)"
	deniedTemplate      = "Key forbids access to {resource}: {details}"
)

// Envelope is a failure body shaped like the upstream's own errors, so
// client parsers keep working, with the proxy fields added. Code is only
// set for the primary host.
type Envelope struct {
	Code       *int   `json:"code,omitempty"`
	Error      string `json:"error"`
	Proxy      bool   `json:"proxy"`
	ProxyCode  int    `json:"proxy_code"`
	ProxyError string `json:"proxy_error"`
}

type upstreamShape struct {
	code    int
	message string
}

var primaryShapes = map[int]upstreamShape{
	ProxyCodeForward:  {0, "Unknown error"},
	ProxyCodeNotFound: {2, "Incorrect Key"},
	ProxyCodeRevoked:  {2, "Incorrect Key"},
	ProxyCodeNoAccess: {7, "Incorrect ID-entity relation"},
}

// Normalize converts a pipeline failure into the HTTP status and envelope
// for host. Unrecognised errors are treated as forwarding failures.
func Normalize(host upstream.Host, err error) (int, Envelope) {
	env := Envelope{Proxy: true}
	status := http.StatusForbidden

	var deny *DenyError
	switch {
	case errors.Is(err, common.ErrCredentialNotFound):
		env.ProxyCode = ProxyCodeNotFound
		env.ProxyError = "Key not found"
	case errors.Is(err, common.ErrCredentialRevoked):
		env.ProxyCode = ProxyCodeRevoked
		env.ProxyError = "Key revoked"
	case errors.As(err, &deny):
		env.ProxyCode = ProxyCodeNoAccess
		env.ProxyError = strings.NewReplacer("{resource}", deny.Resource, "{details}", deny.Details()).Replace(deniedTemplate)
	default:
		status = http.StatusBadGateway
		env.ProxyCode = ProxyCodeForward
		if host == upstream.HostCompanion {
			env.ProxyError = "Failed to proxy the request to tornstats.com"
		} else {
			env.ProxyError = "Failed to proxy the request to torn.com"
		}
	}

	if host == upstream.HostCompanion {
		env.Error = companionErrorField
		return status, env
	}

	shape := primaryShapes[env.ProxyCode]
	code := shape.code
	env.Code = &code
	env.Error = shape.message
	return status, env
}
