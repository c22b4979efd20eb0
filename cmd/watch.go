package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ahalansari/deep-search/internal/agent/core"
	"github.com/ahalansari/deep-search/internal/queue/streams"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func watchCMD() *cobra.Command {
	var block time.Duration

	var watch = &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow the progress stream of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Storage.Redis.Enabled() {
				return fmt.Errorf("redis not configured (storage.redis.host)")
			}
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			w := streams.NewWatcher(rdb, streams.WithBlock(block))
			return w.Tail(ctx, args[0], func(m streams.Message) error {
				switch m.Envelope.EventType {
				case streams.EventProgress:
					fmt.Fprintf(out, "[%s] %s\n", m.Envelope.OccurredAt.Local().Format("15:04:05"), m.Envelope.Message())
				case streams.EventComplete:
					var sess core.Session
					if err := json.Unmarshal(m.Envelope.Data, &sess); err != nil {
						return fmt.Errorf("decode completed session: %w", err)
					}
					fmt.Fprintln(out)
					printSession(out, sess)
				}
				return nil
			})
		},
	}
	watch.Flags().DurationVar(&block, "block", 5*time.Second, "maximum blocking time of each read")

	return watch
}
