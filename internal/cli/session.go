package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/workflowrunner/internal/session"
	"github.com/use-agent/workflowrunner/internal/ui"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted cookie sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved session names",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := session.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(os.Stdout, ui.Info("no saved sessions"))
			return nil
		}
		for _, n := range names {
			fmt.Fprintln(os.Stdout, n)
		}
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.DeleteWithManifest(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s deleted session %q\n", ui.Success("ok"), args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd, sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
