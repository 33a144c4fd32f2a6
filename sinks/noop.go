package sinks

import (
	"context"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/models"
)

// Noop accepts every chunk without side effects
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Open(ctx context.Context) error { return nil }

func (n *Noop) Write(ctx context.Context, chunk models.Chunk) error { return nil }

func (n *Noop) Close() error { return nil }

func (n *Noop) Capabilities() models.SinkCapabilities {
	return models.SinkCapabilities{ConcurrencySafe: true}
}

func init() {
	builder.RegisterSinkType("noop", func(cfg map[string]any, vars map[string]any) (models.Sink, error) {
		return NewNoop(), nil
	})
}
