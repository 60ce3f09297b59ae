package domain

import "time"

// RefreshToken is one outstanding session-renewal credential. Only the hash of
// the opaque token string is persisted.
type RefreshToken struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	AccountID string     `bson:"account_id" json:"accountId"`
	TokenHash string     `bson:"token_hash" json:"-"`
	ExpiresAt time.Time  `bson:"expires_at" json:"expiresAt"`
	Revoked   bool       `bson:"revoked" json:"revoked"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty" json:"revokedAt,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
}

// Usable reports whether the token can still be consumed at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// TokenPair is what a successful authentication flow hands back to the client.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
