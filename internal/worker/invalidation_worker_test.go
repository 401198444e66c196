package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"pricedash/internal/amqp"
)

type fakeConsumer struct {
	events []*amqp.ObservationsIngested
	err    error
}

func (c *fakeConsumer) ConsumeIngested(ctx context.Context, handler func(context.Context, *amqp.ObservationsIngested) error) error {
	for _, e := range c.events {
		if err := handler(ctx, e); err != nil {
			return err
		}
	}
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeCache struct {
	invalidated []string
}

func (c *fakeCache) Invalidate(locale string) int {
	c.invalidated = append(c.invalidated, locale)
	return 3
}

func TestInvalidationWorker_Run(t *testing.T) {
	consumer := &fakeConsumer{events: []*amqp.ObservationsIngested{
		amqp.NewObservationsIngested("en", "csv:en.csv", 10),
		amqp.NewObservationsIngested("fr", "csv:fr.csv", 5),
		amqp.NewObservationsIngested("km", "fake:1", 500),
	}}
	cache := &fakeCache{}
	w := NewInvalidationWorker(consumer, cache, []string{"en", "km"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil on context end", err)
	}
	if len(cache.invalidated) != 2 || cache.invalidated[0] != "en" || cache.invalidated[1] != "km" {
		t.Errorf("invalidated = %v, want [en km]", cache.invalidated)
	}
}

func TestInvalidationWorker_ConsumerFailure(t *testing.T) {
	boom := errors.New("channel closed")
	w := NewInvalidationWorker(&fakeConsumer{err: boom}, &fakeCache{}, []string{"en"}, nil)

	if err := w.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want %v", err, boom)
	}
}
