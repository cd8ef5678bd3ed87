package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PermissionLevel is the coarse policy tier of a proxy credential. The
// values are the strings persisted and exchanged with the owner UI.
type PermissionLevel string

const (
	PermissionPublic        PermissionLevel = "public"
	PermissionPublicPrivate PermissionLevel = "*"
)

// ParsePermissionLevel accepts only the fixed enumeration.
func ParsePermissionLevel(s string) (PermissionLevel, bool) {
	switch PermissionLevel(s) {
	case PermissionPublic, PermissionPublicPrivate:
		return PermissionLevel(s), true
	}
	return "", false
}

// ProxyCredential is a derived key an external application presents
// instead of the real secret. RevokedAt may be set and later cleared.
type ProxyCredential struct {
	Token       string          `json:"key"`
	UserID      int64           `json:"user_id"`
	Description string          `json:"description"`
	Permissions PermissionLevel `json:"permissions"`
	CreatedAt   time.Time       `json:"created_at"`
	RevokedAt   *time.Time      `json:"revoked_at"`
}

// Revoked reports whether the credential is currently revoked.
func (c *ProxyCredential) Revoked() bool {
	return c.RevokedAt != nil
}

// CredentialUpdate is a partial update with one optional slot per mutable
// field. A nil slot leaves the column untouched.
//
// RevokedAt: Valid=true revokes at Time, Valid=false reinstates.
type CredentialUpdate struct {
	RevokedAt   *sql.NullTime
	Permissions *PermissionLevel
}

// IsEmpty reports whether the update would change nothing.
func (u CredentialUpdate) IsEmpty() bool {
	return u.RevokedAt == nil && u.Permissions == nil
}

// DecodeCredentialUpdate reads a partial update from a JSON object.
//
// revoked_at: null reinstates, an RFC 3339 string revokes at that time, any
// other value drops the slot. permissions: only "public" and "*" are kept.
// Unknown fields are ignored. Only a body that is not a JSON object fails.
func DecodeCredentialUpdate(body []byte) (CredentialUpdate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return CredentialUpdate{}, err
	}
	if raw == nil {
		return CredentialUpdate{}, errors.New("update must be a JSON object")
	}

	var upd CredentialUpdate

	if v, ok := raw["revoked_at"]; ok {
		if string(v) == "null" {
			upd.RevokedAt = &sql.NullTime{}
		} else {
			var s string
			if json.Unmarshal(v, &s) == nil {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					upd.RevokedAt = &sql.NullTime{Time: t, Valid: true}
				}
			}
		}
	}

	if v, ok := raw["permissions"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			if p, ok := ParsePermissionLevel(s); ok {
				upd.Permissions = &p
			}
		}
	}

	return upd, nil
}
