/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/valpere/news2docx/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			runs, err := db.ListRuns(ctx, runsLimit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTARGET\tTOTAL\tOK\tFAILED\tBAND MISS\tSTARTED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
					r.ID, r.TargetLang, r.Total, r.Succeeded, r.Failed, r.BandMiss,
					r.StartedAt.Format("2006-01-02 15:04"), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			return w.Flush()
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the articles of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			articles, err := db.RunArticles(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}
			if len(articles) == 0 {
				return fmt.Errorf("run %s not found", args[0])
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTATUS\tSTAGE\tCLASS\tURL\tMESSAGE")
			for i, a := range articles {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					i+1, a.Status, dash(a.Stage), dash(a.Class),
					runewidth.Truncate(a.URL, 60, "..."), runewidth.Truncate(a.Message, 60, "..."))
			}
			return w.Flush()
		})
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to show")
	runsCmd.AddCommand(runsShowCmd)
}
