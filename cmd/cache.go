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
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/valpere/news2docx/internal/store"
)

var (
	cacheListLimit  int
	cacheClearStage string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the content cache",
	Long:  `Inspect and clear the SQLite cache of normalized and translated articles.`,
}

// withStore opens the configured SQLite cache for a subcommand.
func withStore(fn func(ctx context.Context, db *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(context.Background(), db)
}

// snippet previews a cached payload: the title when there is one, the raw
// JSON otherwise, truncated to width display columns.
func snippet(payload []byte, width int) string {
	text := ""
	for _, path := range []string{"target_title", "title", "paragraphs.0", "target_paragraphs.0"} {
		if v := gjson.GetBytes(payload, path); v.Exists() && v.String() != "" {
			text = v.String()
			break
		}
	}
	if text == "" {
		text = string(payload)
	}
	text = strings.Join(strings.Fields(text), " ")
	return runewidth.Truncate(text, width, "...")
}

func shortHash(h string) string {
	return h[:min(12, len(h))]
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached stage results, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			entries, err := db.List(ctx, cacheListLimit)
			if err != nil {
				return fmt.Errorf("failed to list entries: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("Cache is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tLANG\tHASH\tSIZE\tCREATED\tPREVIEW")
			for _, e := range entries {
				lang := e.Key.Lang
				if lang == "" {
					lang = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					e.Key.Stage, lang, shortHash(e.Key.Hash), len(e.Payload),
					e.CreatedAt.Format("2006-01-02 15:04"), snippet(e.Payload, 40))
			}
			return w.Flush()
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show content cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			stats, err := db.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			fmt.Printf("Total entries: %d\n", stats.TotalEntries)
			fmt.Printf("Total size:    %d bytes\n", stats.TotalBytes)

			stages := make([]string, 0, len(stats.ByStage))
			for s := range stats.ByStage {
				stages = append(stages, s)
			}
			sort.Strings(stages)
			for _, s := range stages {
				fmt.Printf("  %-20s %d\n", s, stats.ByStage[s])
			}
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			n, err := db.Clear(ctx, cacheClearStage)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Printf("Cleared %d entries from the cache.\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheListCmd.Flags().IntVar(&cacheListLimit, "limit", 50, "Maximum entries to show (0 for all)")
	cacheClearCmd.Flags().StringVar(&cacheClearStage, "stage", "", "Only clear entries of this stage, e.g. translate")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
