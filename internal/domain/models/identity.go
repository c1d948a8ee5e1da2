// internal/domain/models/identity.go
package models

import "time"

// Identity is an authenticated account managed by the auth provider.
// ID (the uid) and Email are immutable after registration.
type Identity struct {
	ID           string    `bson:"_id" json:"uid"`
	Email        string    `bson:"email" json:"email"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

// Author returns the snapshot stored on articles published by this identity.
func (i Identity) Author() Author {
	return Author{UID: i.ID, Username: i.Username, Email: i.Email}
}
