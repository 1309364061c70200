// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, locate, list, and clean up sessions",
	Long: `Session manages the per-run directories under <docs_base>/sessions/.
Each session holds inputs/, assets/, checkpoints/, and logs/.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionManager(logger).Create()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var sessionPathCmd = &cobra.Command{
	Use:   "path <session-id>",
	Short: "Print the root directory of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := sessionManager(logger).Path(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
		return nil
	},
}

var sessionExistsCmd = &cobra.Command{
	Use:   "exists <session-id>",
	Short: "Report whether a session directory is present",
	Long:  `Exists prints true or false and exits non-zero when the session is absent.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := sessionManager(logger).Exists(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		if !ok {
			return fmt.Errorf("session %s does not exist", args[0])
		}
		return nil
	},
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup <session-id>",
	Short: "Delete a session, or move it to the archive with --archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, _ := cmd.Flags().GetBool("archive")
		if err := sessionManager(logger).Cleanup(args[0], archive); err != nil {
			return err
		}
		verb := "deleted"
		if archive {
			verb = "archived"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[0])
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live session ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := sessionManager(logger).List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	sessionCleanupCmd.Flags().Bool("archive", false, "move the session to the archive instead of deleting it")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionPathCmd)
	sessionCmd.AddCommand(sessionExistsCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	sessionCmd.AddCommand(sessionListCmd)

	rootCmd.AddCommand(sessionCmd)
}
