package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamtc007/ob-poc-sub006/internal/registrystore"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

func verbsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verbs",
		Short: "Verb registry operations (CI hash-check and forced sync)",
	}
	cmd.AddCommand(verbsCheckCommand())
	cmd.AddCommand(verbsSyncCommand())
	return cmd
}

func verbsCheckCommand() *cobra.Command {
	var verbsDir string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compute the registry hash and compare it against the store's last sync (CI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerbsCheck(verbsDir)
		},
	}
	cmd.Flags().StringVar(&verbsDir, "verbs-dir", "verbs", "directory of verb YAML source files")
	return cmd
}

func runVerbsCheck(verbsDir string) error {
	reg, err := verbregistry.LoadDir(verbsDir)
	if err != nil {
		return fmt.Errorf("loading verb definitions: %w", err)
	}

	db, err := connectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	store := registrystore.New(db)
	existing, err := store.ExistingYAMLHashes(context.Background())
	if err != nil {
		return fmt.Errorf("loading existing hashes: %w", err)
	}

	current := verbregistry.HashRegistry(reg)
	var drifted []string
	for fqn, hash := range current {
		if existing[fqn] != hash {
			drifted = append(drifted, fqn)
		}
	}
	for fqn := range existing {
		if _, ok := current[fqn]; !ok {
			drifted = append(drifted, fqn+" (removed from source)")
		}
	}

	if len(drifted) > 0 {
		fmt.Printf("registry drift detected in %d verb(s):\n", len(drifted))
		for _, fqn := range drifted {
			fmt.Printf("  - %s\n", fqn)
		}
		return fmt.Errorf("registry hash mismatch")
	}

	fmt.Printf("registry is in sync: %d verbs checked\n", len(current))
	return nil
}

func verbsSyncCommand() *cobra.Command {
	var verbsDir string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Force a sync of the verb source tree to the store and print the SyncResult",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerbsSync(verbsDir)
		},
	}
	cmd.Flags().StringVar(&verbsDir, "verbs-dir", "verbs", "directory of verb YAML source files")
	return cmd
}

func runVerbsSync(verbsDir string) error {
	reg, err := verbregistry.LoadDir(verbsDir)
	if err != nil {
		return fmt.Errorf("loading verb definitions: %w", err)
	}

	db, err := connectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	store := registrystore.New(db)
	svc := verbregistry.NewSyncService(store)

	result, err := svc.SyncAll(context.Background(), reg)
	if err != nil {
		return fmt.Errorf("syncing registry: %w", err)
	}

	fmt.Printf("sync complete: added=%d updated=%d unchanged=%d removed=%d duration=%dms\n",
		result.VerbsAdded, result.VerbsUpdated, result.VerbsUnchanged, result.VerbsRemoved, result.DurationMS)
	return nil
}
