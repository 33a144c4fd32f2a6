package riot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corey-cole/riot/models"
)

// sliceSource serves records in order; indexes in parseErrors fail with a ParseError.
// It counts overlapping Next calls to detect concurrent access.
type sliceSource struct {
	records     []*models.Record
	parseErrors map[int]bool
	openErr     error
	delay       time.Duration

	pos        int
	nextCalls  atomic.Int64
	inNext     atomic.Int64
	overlaps   atomic.Int64
	openCount  atomic.Int64
	closeCount atomic.Int64
	events     *callLog
}

func newSliceSource(n int) *sliceSource {
	records := make([]*models.Record, n)
	for i := range records {
		records[i] = models.RecordOf("id", i+1)
	}
	return &sliceSource{records: records, parseErrors: map[int]bool{}}
}

func (s *sliceSource) Open(ctx context.Context) error {
	s.openCount.Add(1)
	s.events.add("open source")
	return s.openErr
}

func (s *sliceSource) Next(ctx context.Context) (*models.Record, error) {
	if s.inNext.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	defer s.inNext.Add(-1)
	s.nextCalls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	if s.pos >= len(s.records) {
		return nil, models.ErrEndOfStream
	}
	i := s.pos
	s.pos++
	if s.parseErrors[i] {
		return nil, models.ErrParse(int64(i+1), "garbage", errors.New("malformed line"))
	}
	return s.records[i], nil
}

func (s *sliceSource) Close() error {
	s.closeCount.Add(1)
	s.events.add("close source")
	return nil
}

func (s *sliceSource) Capabilities() models.SourceCapabilities {
	return models.SourceCapabilities{EstimatedSize: int64(len(s.records))}
}

// liveSource emits queued records and reports ErrNoData when the queue is empty
type liveSource struct {
	mu       sync.Mutex
	queue    []*models.Record
	lastEmit time.Time
}

func (s *liveSource) push(records ...*models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, records...)
}

func (s *liveSource) lastEmitted() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEmit
}

func (s *liveSource) Open(ctx context.Context) error { return nil }

func (s *liveSource) Next(ctx context.Context) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, models.ErrNoData
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	s.lastEmit = time.Now()
	return r, nil
}

func (s *liveSource) Close() error { return nil }

func (s *liveSource) Capabilities() models.SourceCapabilities {
	return models.SourceCapabilities{Live: true, EstimatedSize: -1}
}

// memorySink records every chunk it is given. It fails the first failTimes writes with failErr.
type memorySink struct {
	name       string
	safe       bool
	failTimes  int
	failErr    error
	openErr    error
	closeErr   error
	writeDelay time.Duration
	events     *callLog

	mu         sync.Mutex
	attempts   int
	chunks     []models.Chunk
	openCount  atomic.Int64
	closeCount atomic.Int64
}

func (s *memorySink) Open(ctx context.Context) error {
	s.openCount.Add(1)
	s.events.add("open " + s.name)
	return s.openErr
}

func (s *memorySink) Write(ctx context.Context, chunk models.Chunk) error {
	if s.writeDelay > 0 {
		time.Sleep(s.writeDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failTimes || (s.failTimes < 0 && s.failErr != nil) {
		return s.failErr
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *memorySink) Close() error {
	s.closeCount.Add(1)
	s.events.add("close " + s.name)
	return s.closeErr
}

func (s *memorySink) Capabilities() models.SinkCapabilities {
	return models.SinkCapabilities{ConcurrencySafe: s.safe}
}

func (s *memorySink) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, chunk := range s.chunks {
		for _, r := range chunk {
			v, _ := r.Get("id")
			ids = append(ids, v.(int64))
		}
	}
	return ids
}

func (s *memorySink) writeAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *memorySink) factory() models.SinkFactory {
	return func() (models.Sink, error) { return s, nil }
}

// callLog records lifecycle calls in order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func testOptions(mutate func(*StepOptions)) StepOptions {
	opts := DefaultStepOptions()
	opts.ChunkSize = 10
	if mutate != nil {
		mutate(&opts)
	}
	return opts
}

func mustStep(name string, opts StepOptions, source models.Source, sinks models.SinkFactory, transformer models.Transformer) *Step {
	def, err := NewStepDefinition(name, opts)
	if err != nil {
		panic(err)
	}
	step, err := NewStep(def, source, sinks, transformer)
	if err != nil {
		panic(err)
	}
	return step
}

func sequence(from, to int) []int64 {
	ids := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, int64(i))
	}
	return ids
}

var errRejected = models.ErrPermanent(fmt.Errorf("ERR wrong kind of value"))
