package pubsub

import "context"

// Broadcaster fans processed-event notifications out to downstream
// subscribers (websocket gateways, dashboards).
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}
