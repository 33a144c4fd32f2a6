package sources

import (
	"context"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/models"
)

// Slice serves records from memory
type Slice struct {
	records []*models.Record
	pos     int
}

func NewSlice(records ...*models.Record) *Slice {
	return &Slice{records: records}
}

func (s *Slice) Open(ctx context.Context) error {
	s.pos = 0
	return nil
}

func (s *Slice) Next(ctx context.Context) (*models.Record, error) {
	if s.pos >= len(s.records) {
		return nil, models.ErrEndOfStream
	}
	record := s.records[s.pos]
	s.pos++
	return record.Clone(), nil
}

func (s *Slice) Close() error { return nil }

func (s *Slice) Capabilities() models.SourceCapabilities {
	return models.SourceCapabilities{EstimatedSize: int64(len(s.records))}
}

func init() {
	builder.RegisterSourceType("slice", func(cfg map[string]any, vars map[string]any) (models.Source, error) {
		var opts struct {
			Records []map[string]any `mapstructure:"records"`
		}
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		records := make([]*models.Record, 0, len(opts.Records))
		for _, m := range opts.Records {
			records = append(records, models.RecordFromMap(m))
		}
		return NewSlice(records...), nil
	})
}
