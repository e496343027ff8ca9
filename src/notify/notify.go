package notify

import (
	"context"
)

// GlobalChannel is the default fan-out channel all task events go to.
// Per-owner channels can be layered on later without changing the contract.
const GlobalChannel = "notifications.global"

// Event is one task progress update. Events are ephemeral: they reach the
// listeners subscribed at publish time and are never replayed.
type Event struct {
	TaskID     string                 `json:"task_id"`
	DocumentID *int64                 `json:"document_id"`
	Kind       string                 `json:"kind"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Progress   int                    `json:"progress"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Bus is a fan-out publish/subscribe channel. Delivery is at-least-once to
// currently connected subscribers; events published by a single task arrive
// at a given subscriber in publish order.
type Bus interface {
	Publish(channel string, event Event) error
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)
	Close() error
}
