// Command sessionscribe runs the transcription pipeline against a single
// session recording. It is the sessionscribe root command, mirroring the
// teacher's `birdnet` root binary: a thin cobra/viper shell around the
// `process` subcommand that does the actual work.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gambitnl/sessionscribe/internal/config"
	"github.com/gambitnl/sessionscribe/internal/logging"
)

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a run's outcome to the process exit code: 0 success, 130
// user-initiated cancellation (SIGINT), 1 any other failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if isCancellation(err) {
		return 130
	}
	return 1
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessionscribe",
		Short: "Transcribe, diarize, and classify TTRPG session recordings",
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")

	cmd.AddCommand(processCommand())
	return cmd
}

func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	configFile, _ := cmd.Flags().GetString("config")
	v := viper.New()
	settings, err := config.Load(v, cmd.Flags(), configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Options{Dir: settings.LogDir, AlsoStderr: true})
	return settings, nil
}
