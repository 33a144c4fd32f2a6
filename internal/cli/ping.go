package cli

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/corey-cole/riot/sinks"
)

func newPingCommand(a *app) *cobra.Command {
	var (
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and latency to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uri := a.viper.GetString("redis-uri")
			options, err := redis.ParseURL(uri)
			if err != nil {
				return fmt.Errorf("invalid redis uri: %w", err)
			}
			client := redis.NewClient(options)
			defer client.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			var total time.Duration
			for i := range count {
				if i > 0 && interval > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
				start := time.Now()
				reply, err := client.Ping(ctx).Result()
				if err != nil {
					return fmt.Errorf("ping %s: %w", options.Addr, err)
				}
				latency := time.Since(start)
				total += latency
				a.log.V(1).Info("ping", "address", options.Addr, "latency", latency)
				fmt.Fprintf(out, "%s from %s: time=%s\n", reply, options.Addr, latency.Round(time.Microsecond))
			}
			if count > 1 {
				fmt.Fprintf(out, "%d pings, average %s\n", count, (total / time.Duration(count)).Round(time.Microsecond))
			}
			return nil
		},
	}

	cmd.Flags().String("redis-uri", sinks.DefaultRedisURI, "Redis URI")
	cmd.Flags().IntVar(&count, "count", 1, "number of pings")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "wait between pings")
	return cmd
}
