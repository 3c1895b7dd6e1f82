// Command resume inspects and manages on-disk pipeline checkpoints,
// independent of a full process run: list which sessions have resumable
// state, show how far a session got, or clear a stuck checkpoint so the
// next process --resume starts that session over from stage one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Inspect and manage sessionscribe pipeline checkpoints",
	}
	cmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "base output directory process was run against")
	cmd.SilenceUsage = true

	cmd.AddCommand(listCommand(&outputDir))
	cmd.AddCommand(statusCommand(&outputDir))
	cmd.AddCommand(clearCommand(&outputDir))
	return cmd
}
