package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
	"github.com/redis/go-redis/v9"
)

// Redis write commands
const (
	CommandSet    = "set"
	CommandHSet   = "hset"
	CommandDel    = "del"
	CommandExpire = "expire"
	CommandSAdd   = "sadd"
	CommandRPush  = "rpush"
	CommandLPush  = "lpush"
	CommandZAdd   = "zadd"
	CommandXAdd   = "xadd"
	CommandNoop   = "noop"
)

const (
	DefaultRedisURI  = "redis://localhost:6379"
	DefaultSeparator = ":"

	FormatJSON = "json"
	FormatRaw  = "raw"
)

// RedisOptions configures a redis sink
type RedisOptions struct {
	URI          string           `mapstructure:"uri"`
	Command      string           `mapstructure:"command"`
	Keyspace     string           `mapstructure:"keyspace"`
	Keys         []string         `mapstructure:"keys"`
	Key          config.ValueSpec `mapstructure:"key"`
	Separator    string           `mapstructure:"separator"`
	Merge        bool             `mapstructure:"merge"`
	Format       string           `mapstructure:"format"`
	Field        string           `mapstructure:"field"`
	Score        string           `mapstructure:"score"`
	TTL          time.Duration    `mapstructure:"ttl"`
	MaxLen       int64            `mapstructure:"maxlen"`
	Approximate  bool             `mapstructure:"approximate"`
	MultiExec    bool             `mapstructure:"multi_exec"`
	WaitReplicas int              `mapstructure:"wait_replicas"`
	WaitTimeout  time.Duration    `mapstructure:"wait_timeout"`
	PoolSize     int              `mapstructure:"pool_size"`
	RemoveFields bool             `mapstructure:"remove_fields"`
}

// Redis writes each record of a chunk with one command, sending the whole chunk
// in a single pipeline (or MULTI/EXEC transaction).
type Redis struct {
	opts      RedisOptions
	variables map[string]any
	client    *redis.Client
}

// redisOp is a command prepared for one record
type redisOp struct {
	key    string
	record *models.Record
	// value is the payload for set and the member for collection commands
	value any
	hash  map[string]any
	score float64
}

// NewRedis validates the options. The connection is made by Open.
func NewRedis(opts RedisOptions, variables map[string]any) (*Redis, error) {
	if opts.URI == "" {
		opts.URI = DefaultRedisURI
	}
	if _, err := redis.ParseURL(opts.URI); err != nil {
		return nil, fmt.Errorf("invalid redis uri: %w", err)
	}
	if opts.Command == "" {
		opts.Command = CommandHSet
	}
	opts.Command = strings.ToLower(opts.Command)
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}

	var errs []error
	if opts.Command != CommandNoop && opts.Keyspace == "" && opts.Key == nil {
		errs = append(errs, errors.New("one of 'keyspace' or 'key' is required"))
	}
	if opts.Keyspace != "" && opts.Key != nil {
		errs = append(errs, errors.New("'keyspace' and 'key' are mutually exclusive"))
	}
	switch opts.Command {
	case CommandSet:
		switch opts.Format {
		case FormatJSON:
		case FormatRaw:
			if opts.Field == "" {
				errs = append(errs, errors.New("'field' is required with raw format"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported format: %s", opts.Format))
		}
	case CommandExpire:
		if opts.TTL <= 0 {
			errs = append(errs, errors.New("'ttl' is required for expire"))
		}
	case CommandZAdd:
		if opts.Score == "" {
			errs = append(errs, errors.New("'score' is required for zadd"))
		}
	case CommandHSet, CommandDel, CommandSAdd, CommandRPush, CommandLPush, CommandXAdd, CommandNoop:
	default:
		errs = append(errs, fmt.Errorf("unsupported command: %s", opts.Command))
	}
	if opts.TTL < 0 || opts.WaitTimeout < 0 || opts.MaxLen < 0 || opts.WaitReplicas < 0 || opts.PoolSize < 0 {
		errs = append(errs, errors.New("ttl, wait_timeout, maxlen, wait_replicas and pool_size must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Redis{opts: opts, variables: variables}, nil
}

// Open connects and checks the server with PING
func (s *Redis) Open(ctx context.Context) error {
	options, err := redis.ParseURL(s.opts.URI)
	if err != nil {
		return err
	}
	if s.opts.PoolSize > 0 {
		options.PoolSize = s.opts.PoolSize
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("ping %s: %w", options.Addr, err)
	}
	s.client = client
	return nil
}

func (s *Redis) Write(ctx context.Context, chunk models.Chunk) error {
	if s.client == nil {
		return models.ErrPermanent(errors.New("redis sink is not open"))
	}
	if s.opts.Command == CommandNoop || len(chunk) == 0 {
		return nil
	}

	ops := make([]redisOp, 0, len(chunk))
	for _, record := range chunk {
		op, err := s.prepare(record)
		if err != nil {
			return models.ErrPermanent(err)
		}
		ops = append(ops, op)
	}

	if s.opts.Command == CommandSet && s.opts.Merge && s.opts.Format == FormatJSON {
		if err := s.mergeDocuments(ctx, ops); err != nil {
			return classifyRedisError(err)
		}
	}

	var pipe redis.Pipeliner
	if s.opts.MultiExec {
		pipe = s.client.TxPipeline()
	} else {
		pipe = s.client.Pipeline()
	}
	for _, op := range ops {
		s.queue(ctx, pipe, op)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return classifyRedisError(err)
	}

	if s.opts.WaitReplicas > 0 {
		acked, err := s.client.Wait(ctx, s.opts.WaitReplicas, s.opts.WaitTimeout).Result()
		if err != nil {
			return classifyRedisError(err)
		}
		if acked < int64(s.opts.WaitReplicas) {
			return models.ErrTransient(fmt.Errorf("insufficient replication level: %d of %d replicas acknowledged", acked, s.opts.WaitReplicas))
		}
	}
	return nil
}

func (s *Redis) prepare(record *models.Record) (redisOp, error) {
	key, err := s.key(record)
	if err != nil {
		return redisOp{}, err
	}
	op := redisOp{key: key, record: record}

	switch s.opts.Command {
	case CommandSet:
		if s.opts.Format == FormatRaw {
			op.value, err = s.field(record, s.opts.Field)
		} else {
			op.value, err = s.payload(record).MarshalJSON()
		}
	case CommandHSet, CommandXAdd:
		op.hash = s.hash(record)
		if len(op.hash) == 0 {
			err = fmt.Errorf("record %s has no fields to write", record)
		}
	case CommandSAdd, CommandRPush, CommandLPush:
		op.value, err = s.member(record)
	case CommandZAdd:
		op.value, err = s.member(record)
		if err == nil {
			op.score, err = s.scoreOf(record)
		}
	}
	return op, err
}

func (s *Redis) key(record *models.Record) (string, error) {
	if s.opts.Key != nil {
		key, err := config.ResolveString(s.opts.Key, &models.Scope{Record: record, Variables: s.variables})
		if err != nil {
			return "", fmt.Errorf("failed to resolve key: %w", err)
		}
		if key == "" {
			return "", fmt.Errorf("empty key for record %s", record)
		}
		return key, nil
	}

	parts := []string{s.opts.Keyspace}
	for _, name := range s.opts.Keys {
		value, err := s.field(record, name)
		if err != nil {
			return "", err
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, s.opts.Separator), nil
}

func (s *Redis) field(record *models.Record, name string) (string, error) {
	value, ok := record.Get(name)
	if !ok || value == nil {
		return "", fmt.Errorf("field %q missing from record %s", name, record)
	}
	return models.ValueString(value), nil
}

// payload is the record without key fields when remove_fields is set
func (s *Redis) payload(record *models.Record) *models.Record {
	if !s.opts.RemoveFields || len(s.opts.Keys) == 0 {
		return record
	}
	out := record.Clone()
	for _, name := range s.opts.Keys {
		out.Delete(name)
	}
	return out
}

func (s *Redis) hash(record *models.Record) map[string]any {
	payload := s.payload(record)
	hash := make(map[string]any, payload.Len())
	payload.Range(func(name string, value any) bool {
		if value != nil {
			hash[name] = models.ValueString(value)
		}
		return true
	})
	return hash
}

func (s *Redis) member(record *models.Record) (string, error) {
	if s.opts.Field != "" {
		return s.field(record, s.opts.Field)
	}
	b, err := s.payload(record).MarshalJSON()
	return string(b), err
}

func (s *Redis) scoreOf(record *models.Record) (float64, error) {
	value, ok := record.Get(s.opts.Score)
	if !ok {
		return 0, fmt.Errorf("score field %q missing from record %s", s.opts.Score, record)
	}
	switch v := value.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		score, err := strconv.ParseFloat(models.ValueString(v), 64)
		if err != nil {
			return 0, fmt.Errorf("score field %q: %w", s.opts.Score, err)
		}
		return score, nil
	}
}

// mergeDocuments layers each record over the JSON document already stored at its key
func (s *Redis) mergeDocuments(ctx context.Context, ops []redisOp) error {
	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(ops))
	for i, op := range ops {
		gets[i] = pipe.Get(ctx, op.key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for i := range ops {
		existing, err := gets[i].Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		merged := models.NewRecord()
		if err := json.Unmarshal(existing, merged); err != nil {
			// not a JSON object, overwrite it
			continue
		}
		s.payload(ops[i].record).Range(func(name string, value any) bool {
			merged.Set(name, value)
			return true
		})
		if ops[i].value, err = merged.MarshalJSON(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Redis) queue(ctx context.Context, pipe redis.Pipeliner, op redisOp) {
	switch s.opts.Command {
	case CommandSet:
		pipe.Set(ctx, op.key, op.value, s.opts.TTL)
	case CommandHSet:
		if !s.opts.Merge {
			pipe.Del(ctx, op.key)
		}
		pipe.HSet(ctx, op.key, op.hash)
	case CommandDel:
		pipe.Del(ctx, op.key)
	case CommandExpire:
		pipe.Expire(ctx, op.key, s.opts.TTL)
	case CommandSAdd:
		pipe.SAdd(ctx, op.key, op.value)
	case CommandRPush:
		pipe.RPush(ctx, op.key, op.value)
	case CommandLPush:
		pipe.LPush(ctx, op.key, op.value)
	case CommandZAdd:
		pipe.ZAdd(ctx, op.key, redis.Z{Score: op.score, Member: op.value})
	case CommandXAdd:
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: op.key,
			MaxLen: s.opts.MaxLen,
			Approx: s.opts.Approximate,
			Values: op.hash,
		})
	}

	switch s.opts.Command {
	case CommandHSet, CommandSAdd, CommandRPush, CommandLPush, CommandZAdd, CommandXAdd:
		if s.opts.TTL > 0 {
			pipe.Expire(ctx, op.key, s.opts.TTL)
		}
	}
}

func (s *Redis) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Capabilities reports a shareable sink: the client is safe for concurrent use
func (s *Redis) Capabilities() models.SinkCapabilities {
	return models.SinkCapabilities{ConcurrencySafe: true, Merge: s.opts.Merge}
}

// retryable server replies
var transientReplies = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY"}

// classifyRedisError wraps err as transient (worth retrying) or permanent.
// Server error replies are permanent except for the few that signal a passing state.
func classifyRedisError(err error) error {
	if err == nil {
		return nil
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		for _, prefix := range transientReplies {
			if strings.HasPrefix(redisErr.Error(), prefix+" ") || redisErr.Error() == prefix {
				return models.ErrTransient(err)
			}
		}
		return models.ErrPermanent(err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, redis.ErrPoolTimeout),
		errors.As(err, &netErr):
		return models.ErrTransient(err)
	}
	return models.ErrPermanent(err)
}

func init() {
	builder.RegisterSinkType("redis", func(cfg map[string]any, vars map[string]any) (models.Sink, error) {
		var opts RedisOptions
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		return NewRedis(opts, vars)
	})
}
