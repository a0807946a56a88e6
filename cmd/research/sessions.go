package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain stored sessions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
	}

	cmd.AddCommand(
		newSessionsListCmd(),
		newSessionsShowCmd(),
		newSessionsDeleteCmd(),
		newSessionsCleanupCmd(),
		newSessionsCleanupIncompleteCmd(),
		newSessionsSetReportCmd(),
	)
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := app.container.SessionService.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No sessions.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tCREATED\tSTATUS\tCONFIDENCE\tQUERY")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
					item.SessionID, item.CreatedAt.Format("2006-01-02 15:04"), item.Status, item.ConfidenceScore, item.Query)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum sessions to list (default from SESSION_LIST_LIMIT)")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session_id>",
		Short: "Print a session document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.container.SessionService.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session_id>",
		Short: "Delete a session and its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := app.container.SessionService.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("session %s not found", args[0])
			}
			fmt.Println(stageOK("Deleted"), args[0])
			return nil
		},
	}
}

func newSessionsCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = app.cfg.Storage.RetentionDays
			}
			deleted, err := app.container.SessionService.CleanupOld(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d session(s) older than %d day(s).\n", deleted, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "age threshold in days")
	return cmd
}

func newSessionsCleanupIncompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-incomplete",
		Short: "Delete corrupt, partial or stuck sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := app.container.SessionService.CleanupIncomplete(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d incomplete session(s).\n", deleted)
			return nil
		},
	}
}

func newSessionsSetReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-report <session_id> <path>",
		Short: "Record the report generated for a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.container.SessionService.UpdateReportPath(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(stageOK("Report recorded:"), session.ReportPath)
			return nil
		},
	}
}
