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

	"github.com/spf13/cobra"

	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/ratelimit"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show the backends a batch would race",
	Long: `Print every configured backend, plus the models found by the discovery
endpoint when --discover is set, with the rate interval applied to each.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
		defer cancel()

		p := &pipeline{cfg: cfg, logger: logger, chat: backend.NewChatTransport(nil)}
		ids := p.backends(ctx)
		if len(ids) == 0 {
			fmt.Println("No backends configured.")
			return nil
		}

		limiter := ratelimit.New(cfg.DefaultInterval(), cfg.LimiterOverrides())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tMODEL\tENDPOINT\tBUCKET\tINTERVAL\tKEY")
		for _, id := range ids {
			endpoint := id.Endpoint
			if endpoint == "" && id.Kind == backend.KindChat {
				endpoint = backend.DefaultChatEndpoint
			}
			key := "unset"
			if id.APIKey != "" || id.Credentials != "" {
				key = "set"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				id.Name, id.Kind, dash(id.Model), dash(endpoint), id.Bucket(),
				limiter.Interval(id.Bucket()).Round(time.Millisecond), key)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
