package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamtc007/ob-poc-sub006/internal/config"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
	"github.com/adamtc007/ob-poc-sub006/internal/verbsurface"
)

func surfaceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surface",
		Short: "Verb surface computation",
	}
	cmd.AddCommand(surfaceComputeCommand())
	return cmd
}

func surfaceComputeCommand() *cobra.Command {
	var verbsDir, agentMode, stageFocus, entityState string
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute a verb surface against the loaded registry, with no SemReg envelope (safe-harbor test)",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := verbregistry.LoadDir(verbsDir)
			if err != nil {
				return fmt.Errorf("loading verb definitions: %w", err)
			}
			ctx := verbsurface.VerbSurfaceContext{
				AgentMode:   agentMode,
				StageFocus:  stageFocus,
				EntityState: entityState,
				FailPolicy:  config.FailPolicy(),
				Envelope:    &verbsurface.Envelope{Unavailable: true},
			}
			result := verbsurface.ComputeSessionVerbSurface(reg, ctx)
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&verbsDir, "verbs-dir", "verbs", "directory of verb YAML source files")
	cmd.Flags().StringVar(&agentMode, "agent-mode", "", "agent mode filter")
	cmd.Flags().StringVar(&stageFocus, "stage-focus", "", "workflow phase/stage focus filter")
	cmd.Flags().StringVar(&entityState, "entity-state", "", "entity lifecycle state filter")
	return cmd
}
