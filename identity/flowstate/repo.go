package flowstate

import "time"

// FlowState is what the client remembers between redirecting to the identity
// provider and handling the callback.
type FlowState struct {
	CodeVerifier string
	Nonce        string
	RedirectURI  string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *FlowState) error
	Get(state string) (*FlowState, error)
	Delete(state string) error
}
