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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valpere/news2docx/internal/engine"
	"github.com/valpere/news2docx/internal/store"
)

var (
	inputFile    string
	outputFile   string
	outputFormat string
	noCache      bool
	noSaveRun    bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Normalize and translate a batch of articles",
	Long: `Read scraped articles, rewrite each one into the configured word band and
translate it paragraph by paragraph into the target language.

Input is JSON ({"articles": [...]} or a bare array) or CSV with url, title
and content columns. Every article gets its own outcome: a failed article
is reported and the rest of the batch still completes.

The report is written as JSON or YAML; the format follows the output file
extension unless --format is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		articles, err := readArticles(inputFile)
		if err != nil {
			return err
		}

		p, err := buildPipeline(cfg, logger, noCache)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backends := p.backends(ctx)
		if len(backends) == 0 {
			return fmt.Errorf("no backends configured; add backends to the config file or enable discovery")
		}

		report := p.engine.Process(ctx, engine.Batch{
			Articles: articles,
			Target:   cfg.Target(),
			Backends: backends,
		})

		if err := writeReport(outputFile, outputFormat, report); err != nil {
			return err
		}

		if p.db != nil && !noSaveRun {
			// The run is recorded even after an interrupt.
			id, err := p.db.SaveRun(context.Background(), runRecord(report))
			if err != nil {
				logger.Warn("failed to save run", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "Run saved: %s\n", id)
			}
		}

		fmt.Fprintf(os.Stderr, "Processed %d articles into %s: %d succeeded, %d failed, %d outside the word band\n",
			len(report.Outcomes), report.Target.Name, report.Succeeded, report.Failed, report.BandMiss)
		if report.Succeeded == 0 {
			return fmt.Errorf("no article was processed successfully")
		}
		return nil
	},
}

func writeReport(path, format string, report *engine.Report) error {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "json"
		}
	}

	var data []byte
	var err error
	switch format {
	case "json":
		data, err = json.MarshalIndent(report, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(report)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if path == "" || path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func runRecord(report *engine.Report) store.RunRecord {
	rec := store.RunRecord{
		TargetLang: report.Target.Code,
		Total:      len(report.Outcomes),
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		BandMiss:   report.BandMiss,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Articles:   make([]store.RunArticle, len(report.Outcomes)),
	}
	for i, o := range report.Outcomes {
		a := store.RunArticle{URL: o.URL, Status: "ok"}
		if o.OK() {
			a.Payload, _ = json.Marshal(o.Processed)
		} else if o.Failure != nil {
			a.Status = "failed"
			a.Stage = o.Failure.Stage
			a.Class = string(o.Failure.Class)
			a.Message = o.Failure.Message
		}
		rec.Articles[i] = a
	}
	return rec
}

func init() {
	rootCmd.AddCommand(processCmd)

	f := processCmd.Flags()
	f.StringVarP(&inputFile, "input", "i", "", "Input file with scraped articles (required)")
	f.StringVarP(&outputFile, "output", "o", "-", "Output file for the report (- for stdout)")
	f.StringVar(&outputFormat, "format", "", "Report format: json or yaml")
	f.BoolVar(&noCache, "no-cache", false, "Use an in-memory cache instead of the SQLite cache")
	f.BoolVar(&noSaveRun, "no-save-run", false, "Do not record the run in the database")
	f.String("target", "", "Target language name, e.g. Chinese")
	f.String("target-code", "", "Target language ISO 639-1 code, e.g. zh")
	f.Int("concurrency", 0, "Articles processed in parallel")
	f.Int("word-min", 0, "Lower bound of the word band")
	f.Int("word-max", 0, "Upper bound of the word band")

	settings.BindPFlag("target_language", f.Lookup("target"))
	settings.BindPFlag("target_language_code", f.Lookup("target-code"))
	settings.BindPFlag("concurrency", f.Lookup("concurrency"))
	settings.BindPFlag("word_min", f.Lookup("word-min"))
	settings.BindPFlag("word_max", f.Lookup("word-max"))

	processCmd.MarkFlagRequired("input")
}
