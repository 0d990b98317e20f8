package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/use-agent/workflowrunner/internal/results"
	"github.com/use-agent/workflowrunner/internal/session"
	"github.com/use-agent/workflowrunner/internal/ui"
	"github.com/use-agent/workflowrunner/internal/utils/output"
	"github.com/use-agent/workflowrunner/pkg/workflow"
)

var (
	runParams []string
	runURL    string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.json>",
	Short: "Run a workflow file against a live page",
	Long:  `Loads a workflow file, opens one browser page, and drives the rule-matching loop until the workflow copy is exhausted.`,
	Example: `  # run a workflow starting from a URL, printing results as JSON
  workflowrunner run listing.json --url https://example.com/listings

  # persist cookies under a named session and write results to a file
  workflowrunner run login.json --url https://example.com/login --session my-account --output out.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "Initial URL to open before entering the rule loop")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Workflow parameter as key=value; repeatable")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Write results to this file instead of stdout (.json/.csv/.md)")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	appCtx := GetAppFromCmd(cmd)
	if appCtx == nil {
		return fmt.Errorf("application not initialized")
	}
	cfg := appCtx.Config

	wfPath := args[0]
	data, err := os.ReadFile(wfPath)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}
	var wf workflow.WorkflowFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("parse workflow file: %w", err)
	}

	params, err := parseParams(runParams)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTPTimeout*20)
	defer cancel()

	driver, err := appCtx.BrowserPool.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open browser page: %w", err)
	}
	defer driver.Close(ctx)

	if cfg.Session != "" {
		if snap, err := session.Load(cfg.Session); err == nil {
			if err := driver.SetCookies(ctx, snap.Cookies); err != nil {
				log.Warn().Err(err).Str("session", cfg.Session).Msg("failed to restore session cookies")
			}
		}
	}

	if runURL != "" {
		if err := driver.Navigate(ctx, runURL, "load", cfg.HTTPTimeout); err != nil {
			return fmt.Errorf("navigate to %s: %w", runURL, err)
		}
	}

	var bar *progressbar.ProgressBar
	if !cfg.JSONLog {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("running"),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	interp := workflow.New(wf, workflow.Options{
		MaxRepeats:     cfg.MaxRepeats,
		MaxConcurrency: cfg.MaxConcurrency,
		Mode:           cfg.Mode,
		Cache:          appCtx.Cache,
		RateLimiter:    appCtx.RateLimiter,
		DebugChannel: &workflow.DebugChannel{
			ActiveID: func(ruleID string) {
				if ruleID != "" {
					log.Debug().Str("rule", ruleID).Msg("carrying out rule")
				}
			},
			ProgressUpdate: func(executed, remaining int) {
				if bar != nil {
					_ = bar.Set(executed)
				}
			},
		},
	})

	snap, err := interp.Run(ctx, driver, params)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if cfg.Session != "" {
		cookies, cerr := driver.Cookies(ctx, nil)
		if cerr == nil {
			_ = session.SaveWithManifest(&session.Snapshot{
				Name:      cfg.Session,
				URL:       driver.URL(),
				Cookies:   cookies,
				CreatedAt: time.Now(),
			})
		}
	}

	return emitSnapshot(snap, runOutput)
}

func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

func emitSnapshot(snap results.Snapshot, path string) error {
	if path == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return output.SaveCSV(flattenRows(snap), path)
	case ".md":
		return output.SaveMarkdown(flattenRows(snap), path)
	default:
		if err := output.SaveJSON(snap, path); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "%s wrote results to %s\n", ui.Success("done"), path)
	return nil
}

// flattenRows concatenates every capture's rows across every kind and name,
// for exporters (CSV, Markdown) that work over one flat row set rather than
// the full namespaced snapshot.
func flattenRows(snap results.Snapshot) []results.Record {
	var out []results.Record
	for _, byName := range snap {
		for _, rows := range byName {
			out = append(out, rows...)
		}
	}
	return out
}
