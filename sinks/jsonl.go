package sinks

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/models"
)

// JSONLOptions configures a JSON lines sink
type JSONLOptions struct {
	// Path of the output file, "-" or empty for stdout
	Path   string `mapstructure:"path"`
	Append bool   `mapstructure:"append"`
}

// JSONL writes one JSON object per line. Writes are serialized, so one
// instance can be shared by all worker lanes.
type JSONL struct {
	opts   JSONLOptions
	stdout io.Writer

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewJSONL(opts JSONLOptions) *JSONL {
	return &JSONL{opts: opts, stdout: os.Stdout}
}

// NewJSONLWriter creates a sink writing to w
func NewJSONLWriter(w io.Writer) *JSONL {
	return &JSONL{stdout: w}
}

func (s *JSONL) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Path == "" || s.opts.Path == "-" {
		s.writer = bufio.NewWriter(s.stdout)
		return nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if s.opts.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(s.opts.Path, flags, 0o644)
	if err != nil {
		return err
	}
	s.file = file
	s.writer = bufio.NewWriter(file)
	return nil
}

// Write appends the chunk and flushes, so a written chunk is never held in memory
func (s *JSONL) Write(ctx context.Context, chunk models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return models.ErrPermanent(errors.New("jsonl sink is not open"))
	}
	for _, record := range chunk {
		b, err := record.MarshalJSON()
		if err != nil {
			return models.ErrPermanent(err)
		}
		if _, err := s.writer.Write(b); err != nil {
			return err
		}
		if err := s.writer.WriteByte('\n'); err != nil {
			return err
		}
	}
	return s.writer.Flush()
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.writer != nil {
		errs = append(errs, s.writer.Flush())
		s.writer = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	return errors.Join(errs...)
}

func (s *JSONL) Capabilities() models.SinkCapabilities {
	return models.SinkCapabilities{ConcurrencySafe: true}
}

func init() {
	builder.RegisterSinkType("jsonl", func(cfg map[string]any, vars map[string]any) (models.Sink, error) {
		var opts JSONLOptions
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		return NewJSONL(opts), nil
	})
}
