package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gambitnl/sessionscribe/internal/checkpoint"
)

// checkpointsRoot is the "_checkpoints" directory a running session's
// checkpoint.Manager is rooted under (see session.CheckpointDir), one
// subdirectory per sanitized session ID.
func checkpointsRoot(outputDir string) string {
	return filepath.Join(outputDir, "_checkpoints")
}

func listSessionIDs(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(checkpointsRoot(outputDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoint sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func listCommand(outputDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions with resumable checkpoint state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := listSessionIDs(*outputDir)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no checkpointed sessions found under", checkpointsRoot(*outputDir))
				return nil
			}
			for _, id := range ids {
				mgr, err := checkpoint.New(id, filepath.Join(checkpointsRoot(*outputDir), id), nil)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
					continue
				}
				latest, err := mgr.Latest()
				if err != nil || latest == nil {
					fmt.Printf("%s\t(no completed stages)\n", id)
					continue
				}
				fmt.Printf("%s\t%s\t%d stage(s) completed\t%s\n",
					id, latest.Stage, len(latest.CompletedStages), latest.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func statusCommand(outputDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show the checkpoint detail for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			mgr, err := checkpoint.New(sessionID, filepath.Join(checkpointsRoot(*outputDir), sessionID), nil)
			if err != nil {
				return err
			}
			stages, err := mgr.ListStages()
			if err != nil {
				return err
			}
			if len(stages) == 0 {
				fmt.Printf("%s has no checkpoints\n", sessionID)
				return nil
			}
			fmt.Printf("%s: %d stage(s) completed\n", sessionID, len(stages))
			for _, stage := range stages {
				record, err := mgr.Load(stage)
				if err != nil || record == nil {
					fmt.Printf("  %s\t(unreadable)\n", stage)
					continue
				}
				status := "ok"
				if !record.Success {
					status = "failed: " + record.Error
				}
				fmt.Printf("  %s\t%s\t%s\n", stage, record.Timestamp.Format("2006-01-02 15:04:05"), status)
			}
			return nil
		},
	}
}

func clearCommand(outputDir *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete a session's checkpoints so the next --resume starts over from stage one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			if !force {
				fmt.Printf("this permanently deletes all checkpoint data for %q. Continue? [y/N] ", sessionID)
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				if answer != "y\n" && answer != "Y\n" {
					fmt.Println("aborted")
					return nil
				}
			}
			mgr, err := checkpoint.New(sessionID, filepath.Join(checkpointsRoot(*outputDir), sessionID), nil)
			if err != nil {
				return err
			}
			if err := mgr.Clear(); err != nil {
				return err
			}
			fmt.Printf("checkpoints cleared for %s\n", sessionID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}
