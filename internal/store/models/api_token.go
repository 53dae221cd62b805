package models

import (
	"encoding/hex"
	"time"
)

// TokenRefLength is the number of hex characters of the digest shown to admins
const TokenRefLength = 12

// APIToken represents an issued bearer token. Only the SHA-256 digest of the secret is stored.
type APIToken struct {
	TokenHash        []byte     `gorm:"column:api_token;primaryKey;type:bytea" json:"-"`
	Created          time.Time  `gorm:"column:created;not null" json:"created"`
	ValidUntil       time.Time  `gorm:"column:valid_until;not null" json:"valid_until"`
	ClientID         string     `gorm:"column:client_id;type:uuid;not null;index" json:"client_id"`
	ExpiryNotifiedAt *time.Time `gorm:"column:expiry_notified_at" json:"expiry_notified_at,omitempty"`
	RevokedAt        *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
}

// TableName specifies the table name for the model
func (APIToken) TableName() string {
	return "api_tokens"
}

// IsExpiredAt returns true once now reaches valid_until
func (t *APIToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ValidUntil)
}

// IsRevoked reports whether the token was revoked. Revoked tokens keep their row
// so that the digest can never be issued again.
func (t *APIToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActiveAt returns true when the token is not revoked and created <= now < valid_until
func (t *APIToken) IsActiveAt(now time.Time) bool {
	return !t.IsRevoked() && !now.Before(t.Created) && now.Before(t.ValidUntil)
}

// Ref returns a short, non-secret identifier for the token
func (t *APIToken) Ref() string {
	ref := hex.EncodeToString(t.TokenHash)
	if len(ref) > TokenRefLength {
		ref = ref[:TokenRefLength]
	}
	return ref
}
