package main

import (
	"fmt"

	"github.com/ahalansari/deep-search/internal/agent/core"
	"github.com/spf13/cobra"
)

func healthCMD() *cobra.Command {
	var models bool

	var health = &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the search and completion backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			prober := core.NewProber(cfg.Search.UserAgent)

			searxOK := true
			if res, err := prober.TestSearx(ctx, cfg.Search.SearxURL); err != nil {
				searxOK = false
				fmt.Fprintf(out, "searxng  %s  FAIL  %v\n", cfg.Search.SearxURL, err)
			} else {
				fmt.Fprintf(out, "searxng  %s  ok    %d results, engines %v\n", cfg.Search.SearxURL, res.ResultCount, res.Engines)
			}

			status, err := prober.TestModel(ctx, cfg.AI.URL, cfg.AI.Model)
			if err != nil {
				fmt.Fprintf(out, "ai       %s  FAIL  %v\n", cfg.AI.URL, err)
			} else {
				fmt.Fprintf(out, "ai       %s  ok    %s\n", cfg.AI.URL, status)
			}

			if models {
				list, err := prober.ListModels(ctx, cfg.AI.URL)
				if err != nil {
					return err
				}
				for _, m := range list {
					fmt.Fprintf(out, "  - %s (%s)\n", m.ID, m.OwnedBy)
				}
			}
			if !searxOK {
				return fmt.Errorf("search backend unreachable")
			}
			return nil
		},
	}
	health.Flags().BoolVar(&models, "models", false, "also list the models of the completion backend")

	return health
}
