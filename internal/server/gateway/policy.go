package gateway

import (
	"fmt"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
)

const anySelection = "*"

// PublicAllowList maps every resource a Public credential may reach to the
// selections it may request there. "*" admits every selection.
var PublicAllowList = map[string][]string{
	"market":   {anySelection},
	"torn":     {anySelection},
	"property": {anySelection},
	"company":  {"profile", "timestamp", "lookup"},
	"faction":  {"basic", "timestamp", "lookup"},
	"user":     {"basic", "profile", "discord", "personalstats", "timestamp", "lookup"},
}

// Policy is an immutable allow-list table.
type Policy struct {
	public map[string]map[string]struct{}
}

// NewPolicy indexes an allow-list.
func NewPolicy(allow map[string][]string) *Policy {
	p := &Policy{public: make(map[string]map[string]struct{}, len(allow))}
	for res, sels := range allow {
		set := make(map[string]struct{}, len(sels))
		for _, s := range sels {
			set[s] = struct{}{}
		}
		p.public[res] = set
	}
	return p
}

// DefaultPolicy is built from PublicAllowList.
var DefaultPolicy = NewPolicy(PublicAllowList)

// Decision is the outcome of Authorize. On deny, Resource and Selection
// name the offending pair; Selection is empty when the resource itself is
// not allowed.
type Decision struct {
	Allowed   bool
	Resource  string
	Selection string
}

// Err returns nil for an allow and a *DenyError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DenyError{Resource: d.Resource, Selection: d.Selection}
}

// Authorize decides whether level may request req. It is pure.
func (p *Policy) Authorize(level models.PermissionLevel, req ClassifiedRequest) Decision {
	if level == models.PermissionPublicPrivate {
		return Decision{Allowed: true}
	}

	allowed, ok := p.public[req.Resource]
	if !ok || level != models.PermissionPublic {
		return Decision{Resource: req.Resource}
	}

	if _, all := allowed[anySelection]; all {
		return Decision{Allowed: true}
	}

	for _, s := range req.Sorted() {
		if _, ok := allowed[s]; !ok {
			return Decision{Resource: req.Resource, Selection: s}
		}
	}

	return Decision{Allowed: true}
}

// DenyError is a permission denial. It matches common.ErrPermissionDenied.
type DenyError struct {
	Resource  string
	Selection string
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("%v: %s: %s", common.ErrPermissionDenied, e.Resource, e.Details())
}

func (e *DenyError) Unwrap() error { return common.ErrPermissionDenied }

// Details describes what was refused, for the proxy_error message.
func (e *DenyError) Details() string {
	if e.Selection == "" {
		return "resource is not permitted"
	}
	return fmt.Sprintf("selection %s is not permitted", e.Selection)
}
