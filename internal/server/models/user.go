// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the owner of a real upstream secret. ID is the upstream-assigned
// player id. The secret is only ever held encrypted.
type User struct {
	ID              int64
	Name            string
	EncryptedSecret []byte
	IV              []byte
	UpdatedAt       time.Time
}
