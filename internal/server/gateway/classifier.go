package gateway

import (
	"net/url"
	"sort"
	"strings"
)

// SelectionsQueryParam lists the requested sub-fields of a resource.
const SelectionsQueryParam = "selections"

// ClassifiedRequest is the (resource, selections) pair of a proxied call.
// An empty Selections set means the upstream default selection.
type ClassifiedRequest struct {
	Resource   string
	Selections map[string]struct{}
}

// Sorted returns the selections in lexical order.
func (r ClassifiedRequest) Sorted() []string {
	out := make([]string, 0, len(r.Selections))
	for s := range r.Selections {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Classify derives the resource from the first non-empty path segment and
// the selections from the comma separated selections parameter. Names are
// lower-cased and trimmed. It never fails; unknown resources are left to
// the policy.
func Classify(path string, query url.Values) ClassifiedRequest {
	req := ClassifiedRequest{Selections: map[string]struct{}{}}

	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			req.Resource = strings.ToLower(seg)
			break
		}
	}

	for _, raw := range query[SelectionsQueryParam] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				req.Selections[s] = struct{}{}
			}
		}
	}

	return req
}
