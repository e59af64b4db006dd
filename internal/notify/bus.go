package notify

import (
	"context"

	"github.com/clearform/photo-upscaler/internal/bus"
	"github.com/clearform/photo-upscaler/pkg/schema"
)

// Bus publishes the structured done event on a NATS subject so downstream
// consumers (chat bridges, dashboards) can react to finished batches.
type Bus struct {
	Client  *bus.Client
	Subject string
}

func NewBus(client *bus.Client, subject string) *Bus {
	return &Bus{Client: client, Subject: subject}
}

func (b *Bus) Send(_ context.Context, _ string, event schema.BatchDone) error {
	return b.Client.PublishJSON(b.Subject, event)
}
