// Package publish defines the event publisher interface for downstream
// consumers of committed profiles. Implementations live in the memory and
// pubsub subpackages.
package publish

import "context"

// Publisher delivers a payload to a named topic and returns the message
// id assigned by the transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
