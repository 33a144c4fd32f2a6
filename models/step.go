package models

import (
	"context"
	"errors"
)

var (
	// ErrEndOfStream is returned by Source.Next when a bounded source is exhausted
	ErrEndOfStream = errors.New("end of stream")
	// ErrNoData is returned by Source.Next when a live source has nothing available right now
	ErrNoData = errors.New("no data available")
)

// SourceCapabilities describes what a source supports
type SourceCapabilities struct {
	// Live sources have no natural end and are tailed until idle
	Live bool
	// EstimatedSize is the expected record count, or -1 when unknown
	EstimatedSize int64
}

// Source produces records.
// Implementations are not required to be safe for concurrent calls to Next.
type Source interface {
	Open(ctx context.Context) error
	// Next returns the next record, ErrEndOfStream, ErrNoData (live sources only) or a failure.
	// A *ParseError means the current record is unusable but the source can continue.
	Next(ctx context.Context) (*Record, error)
	Close() error
	Capabilities() SourceCapabilities
}

// SinkCapabilities describes what a sink supports
type SinkCapabilities struct {
	// ConcurrencySafe sinks may be shared across worker lanes
	ConcurrencySafe bool
	// Merge makes writes merge into existing sink-side state instead of overwriting it
	Merge bool
}

// Sink consumes chunks of records
type Sink interface {
	Open(ctx context.Context) error
	// Write writes a whole chunk. A failure applies to the chunk as a unit.
	Write(ctx context.Context, chunk Chunk) error
	Close() error
	Capabilities() SinkCapabilities
}

// SinkFactory creates a new, unopened sink instance
type SinkFactory func() (Sink, error)

// Transformer converts records between read and write.
// Returning a nil record drops it.
type Transformer interface {
	Transform(ctx context.Context, record *Record) (*Record, error)
}

// TransformerFunc adapts a function to the Transformer interface
type TransformerFunc func(ctx context.Context, record *Record) (*Record, error)

func (f TransformerFunc) Transform(ctx context.Context, record *Record) (*Record, error) {
	return f(ctx, record)
}

// Scope is the evaluation context for dynamic values
type Scope struct {
	Record    *Record        // Current record, nil outside record processing
	Index     int64          // Position of the record in the stream, starting at 1
	Variables map[string]any // Job variables
}
