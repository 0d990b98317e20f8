// Package cli provides the command-line interface for the workflowrunner
// harness.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/use-agent/workflowrunner/internal/app"
)

// ctxKey is used for storing app context in cobra commands
type ctxKey string

const appKey ctxKey = "app"

// SetApp stores the Application in the command's context and keeps a global fallback.
// This uses the `appKey` context key so callers that can access a Cobra command's
// context can retrieve the app without relying on global state.
func SetApp(cmd *cobra.Command, a *app.Application) {
	if cmd == nil {
		return
	}

	// Ensure a non-nil context is present and store the app in it
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appKey, a))

	// Keep global fallback for existing call sites
	globalApp = a
}

// GetAppFromCmd retrieves the Application stored on cmd's own context, if
// any, without falling back to the root command or the global variable.
// Used by PersistentPreRunE to detect whether this exact command already
// has an app (set by a parent's pre-run) before initializing a new one.
func GetAppFromCmd(cmd *cobra.Command) *app.Application {
	if cmd == nil || cmd.Context() == nil {
		return nil
	}
	if v := cmd.Context().Value(appKey); v != nil {
		if a, ok := v.(*app.Application); ok {
			return a
		}
	}
	return nil
}

// GetApp retrieves the Application from the root command's context if available,
// otherwise falls back to the global variable.
func GetApp() *app.Application {
	// Prefer context-based app if present on the root command
	if rootCmd != nil && rootCmd.Context() != nil {
		if v := rootCmd.Context().Value(appKey); v != nil {
			if a, ok := v.(*app.Application); ok {
				return a
			}
		}
	}

	return globalApp
}

// Global reference - temporary until full context passing is implemented
var globalApp *app.Application
