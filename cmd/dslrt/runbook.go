package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func runbookCommand() *cobra.Command {
	var verbsDir string
	cmd := &cobra.Command{
		Use:   "runbook",
		Short: "Staged runbook operations (stage/pick/remove/preview/show/run/abort)",
	}
	cmd.PersistentFlags().StringVar(&verbsDir, "verbs-dir", "verbs", "directory of verb YAML source files")

	cmd.AddCommand(runbookStageCommand(&verbsDir))
	cmd.AddCommand(runbookPickCommand(&verbsDir))
	cmd.AddCommand(runbookRemoveCommand(&verbsDir))
	cmd.AddCommand(runbookPreviewCommand(&verbsDir))
	cmd.AddCommand(runbookShowCommand(&verbsDir))
	cmd.AddCommand(runbookRunCommand(&verbsDir))
	cmd.AddCommand(runbookAbortCommand(&verbsDir))
	return cmd
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runbookStageCommand(verbsDir *string) *cobra.Command {
	var session, dsl, description, prompt string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Parse, resolve entities for, and persist a new staged command",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			result, events, err := rt.orch.Runbook.Stage(context.Background(), session, dsl, description, prompt)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"command": result, "events": events})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.Flags().StringVar(&dsl, "dsl", "", "DSL source for one verb call")
	cmd.Flags().StringVar(&description, "description", "", "human-readable description")
	cmd.Flags().StringVar(&prompt, "prompt", "", "originating natural-language prompt, if any")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("dsl")
	return cmd
}

func runbookPickCommand(verbsDir *string) *cobra.Command {
	var runbookID, commandID, entities string
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Apply a picker selection to an ambiguous command",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			var ids []string
			if entities != "" {
				ids = strings.Split(entities, ",")
			}
			result, events, err := rt.orch.Runbook.Pick(context.Background(), runbookID, commandID, ids)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"command": result, "events": events})
		},
	}
	cmd.Flags().StringVar(&runbookID, "runbook", "", "runbook id")
	cmd.Flags().StringVar(&commandID, "command", "", "command id")
	cmd.Flags().StringVar(&entities, "entities", "", "comma-separated selected entity ids")
	cmd.MarkFlagRequired("runbook")
	cmd.MarkFlagRequired("command")
	return cmd
}

func runbookRemoveCommand(verbsDir *string) *cobra.Command {
	var runbookID, commandID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a staged command, cascading to its dependents",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			events, err := rt.orch.Runbook.Remove(context.Background(), runbookID, commandID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"events": events})
		},
	}
	cmd.Flags().StringVar(&runbookID, "runbook", "", "runbook id")
	cmd.Flags().StringVar(&commandID, "command", "", "command id")
	cmd.MarkFlagRequired("runbook")
	cmd.MarkFlagRequired("command")
	return cmd
}

func runbookPreviewCommand(verbsDir *string) *cobra.Command {
	var runbookID string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show readiness, DAG order, and reorder diff without executing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			result, err := rt.orch.Runbook.Preview(context.Background(), runbookID)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&runbookID, "runbook", "", "runbook id")
	cmd.MarkFlagRequired("runbook")
	return cmd
}

func runbookShowCommand(verbsDir *string) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active runbook for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			result, err := rt.orch.Runbook.Show(context.Background(), session)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}

func runbookRunCommand(verbsDir *string) *cobra.Command {
	var runbookID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enforce the ready gate and execute every staged command in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			events, result, err := rt.orch.Runbook.Run(context.Background(), runbookID)
			if err != nil {
				printJSON(map[string]any{"events": events, "result": result})
				return err
			}
			return printJSON(map[string]any{"events": events, "result": result})
		},
	}
	cmd.Flags().StringVar(&runbookID, "runbook", "", "runbook id")
	cmd.MarkFlagRequired("runbook")
	return cmd
}

func runbookAbortCommand(verbsDir *string) *cobra.Command {
	var runbookID string
	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Mark a Building or Ready runbook Aborted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*verbsDir)
			if err != nil {
				return err
			}
			defer rt.db.Close()

			events, err := rt.orch.Runbook.Abort(context.Background(), runbookID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"events": events})
		},
	}
	cmd.Flags().StringVar(&runbookID, "runbook", "", "runbook id")
	cmd.MarkFlagRequired("runbook")
	return cmd
}
