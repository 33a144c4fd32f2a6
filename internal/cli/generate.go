package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corey-cole/riot"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
	"github.com/corey-cole/riot/sinks"
	"github.com/corey-cole/riot/sources"
)

func newGenerateCommand(a *app) *cobra.Command {
	var (
		count  int64
		start  int64
		fields []string
		redis  sinks.RedisOptions
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic records",
		Long: `Generate records from JavaScript expressions and write them to Redis,
or to standard output as JSON lines when no Redis URI is given.

Expressions see $index, the position of the record, and record, the fields
computed so far:

  riot generate --count 100 --field id='$index' --field name='"user" + $index' \
    --redis-uri redis://localhost:6379 --keyspace user --keys id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := parseFieldFlags(fields)
			if err != nil {
				return err
			}
			source, err := sources.NewGenerator(count, start, specs, nil)
			if err != nil {
				return err
			}

			sink := func() (models.Sink, error) {
				return sinks.NewJSONLWriter(cmd.OutOrStdout()), nil
			}
			redis.URI = a.viper.GetString("redis-uri")
			if redis.URI != "" {
				if _, err := sinks.NewRedis(redis, nil); err != nil {
					return err
				}
				sink = func() (models.Sink, error) {
					return sinks.NewRedis(redis, nil)
				}
			}

			opts := riot.ApplyOptions(riot.DefaultStepOptions(), stepOverrides(a.viper))
			def, err := riot.NewStepDefinition("generate", opts)
			if err != nil {
				return err
			}
			step, err := riot.NewStep(def, source, sink, nil)
			if err != nil {
				return err
			}
			job := riot.NewJob("generate")
			if err := job.AddStep(step); err != nil {
				return err
			}
			job.SetLogger(a.log)
			job.AddListener(newProgressListener(a.log))

			ctx := cmd.Context()
			if err := a.startMetrics(ctx); err != nil {
				return err
			}
			_, err = job.Execute(ctx)
			return err
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&count, "count", sources.DefaultGeneratorCount, "number of records to generate")
	flags.Int64Var(&start, "start", sources.DefaultGeneratorStart, "index of the first record")
	flags.StringArrayVar(&fields, "field", nil, "field as name=expression (repeatable)")
	flags.String("redis-uri", "", "target Redis URI, records go to stdout when empty")
	flags.StringVar(&redis.Command, "command", sinks.CommandHSet, "Redis write command")
	flags.StringVar(&redis.Keyspace, "keyspace", "", "key prefix")
	flags.StringSliceVar(&redis.Keys, "keys", nil, "fields appended to the keyspace to form the key")
	flags.StringVar(&redis.Field, "field-name", "", "field used as value or member by set, sadd, rpush, lpush and zadd")
	flags.StringVar(&redis.Score, "score", "", "field holding the zadd score")
	flags.DurationVar(&redis.TTL, "ttl", 0, "key expiration")
	flags.BoolVar(&redis.Merge, "merge", false, "merge into existing hashes or documents")
	addStepFlags(flags)
	return cmd
}

// parseFieldFlags turns name=expression pairs into generator fields
func parseFieldFlags(fields []string) ([]config.FieldSpec, error) {
	specs := make([]config.FieldSpec, 0, len(fields))
	for _, field := range fields {
		name, expr, ok := strings.Cut(field, "=")
		if !ok || name == "" || expr == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=expression", field)
		}
		value := config.NewDynamicValue(expr)
		if err := value.Compile(); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		specs = append(specs, config.FieldSpec{Name: name, Value: value})
	}
	return specs, nil
}
