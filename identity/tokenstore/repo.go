package tokenstore

import "time"

// Tokens is the persisted result of a login or refresh.
type Tokens struct {
	// Core identity
	Subject string
	Email   string
	Name    string

	IDToken      string
	AccessToken  string
	RefreshToken string

	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repo persists tokens per realm and client, so a restarted client can
// resume the session.
type Repo interface {
	Upsert(realm, clientID string, tokens Tokens) error
	Get(realm, clientID string) (Tokens, error)
	Delete(realm, clientID string) error
}
