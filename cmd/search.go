package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ahalansari/deep-search/internal/agent/core"
	srv "github.com/ahalansari/deep-search/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func searchCMD() *cobra.Command {
	var depth int
	var asJSON, quiet bool

	var search = &cobra.Command{
		Use:   "search <query>",
		Short: "Run an adaptive search session and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			deps, err := srv.BuildDependencies(cmd.Context(), cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer deps.Close()

			var sink core.ProgressSink = core.NopProgress{}
			if !quiet {
				sink = core.ProgressFunc(func(msg string) { fmt.Fprintln(cmd.ErrOrStderr(), "» "+msg) })
			}
			sess, err := deps.Service.RunSession(cmd.Context(), core.SessionRequest{
				Query:    strings.Join(args, " "),
				MaxDepth: depth,
			}, sink)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sess)
			}
			printSession(cmd.OutOrStdout(), sess)
			return nil
		},
	}
	search.Flags().IntVarP(&depth, "depth", "d", 0, "maximum search rounds (default from session.default_max_depth)")
	search.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	search.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")

	return search
}

func quickCMD() *cobra.Command {
	var asJSON bool

	var quick = &cobra.Command{
		Use:   "quick <query>",
		Short: "Run a single search and a one-shot answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := core.NewService(*cfg)
			results, answer, err := svc.QuickAnswer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"results": results, "answer": answer})
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			printSources(cmd.OutOrStdout(), results)
			return nil
		},
	}
	quick.Flags().BoolVar(&asJSON, "json", false, "print results and answer as JSON")

	return quick
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSession(w io.Writer, sess core.Session) {
	fmt.Fprintln(w, sess.ComprehensiveAnswer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "---\nsession %s: %d rounds, %d results\n",
		sess.ID, sess.SearchSummary.SearchRounds, sess.SearchSummary.TotalResults)
	printSources(w, sess.Results)
}

func printSources(w io.Writer, results []core.SearchResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
	}
}
