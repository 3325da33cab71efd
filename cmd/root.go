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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

var (
	cfgFile string
	// settings collects flag bindings; config.Load layers file and
	// environment values underneath them.
	settings = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "news2docx",
	Short: "Normalize and translate scraped news articles",
	Long: `A CLI application that rewrites scraped news articles into a fixed word band
and translates them paragraph by paragraph, racing several AI backends
per request and keeping the first valid answer.

Results are cached in SQLite so repeated runs make no remote calls.

Use "news2docx process --help" for processing options.`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./news2docx.yaml when present)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("cache", "./data/news2docx.db", "SQLite cache path (empty disables the durable cache)")
	pf.Bool("discover", false, "Add models listed by the discovery endpoint to the backends")

	settings.BindPFlag("log_level", pf.Lookup("log-level"))
	settings.BindPFlag("log_format", pf.Lookup("log-format"))
	settings.BindPFlag("cache_path", pf.Lookup("cache"))
	settings.BindPFlag("discovery.enabled", pf.Lookup("discover"))
}
