package services

import (
	"context"
	"sync"

	model "github.com/glkeru/gamification/internal/models"
)

// capturePublisher records published events instead of dispatching them
type capturePublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *capturePublisher) Publish(ctx context.Context, ev model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) byType(eventType string) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
