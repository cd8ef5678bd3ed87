// Package common contains shared constants and sentinel errors used across
// tornproxy components.
package common

import "time"

// SessionCookieName is the cookie that carries the owner's session token.
const SessionCookieName = "jwt"

// ProxyKeyQueryParam is the query parameter holding the proxy credential on
// inbound requests and the real secret on forwarded ones.
const ProxyKeyQueryParam = "key"

// SessionLifetime is the fixed validity of an owner session.
const SessionLifetime = 15 * time.Minute
