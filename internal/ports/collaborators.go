package ports

import "context"

// CredentialPayload identifies the registration a credential proves.
type CredentialPayload struct {
	RegistrationID string
	EventID        string
	UserID         string
}

// CredentialGenerator produces a scannable proof of registration.
// Implementations must be safe to call again for the same registration.
type CredentialGenerator interface {
	Generate(ctx context.Context, payload CredentialPayload) (string, error)
}

// EventPublisher delivers domain events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
