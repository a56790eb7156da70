package cli

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "study-companion",
		Short:        "Study companion that quizzes and explains your own notes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with GEMINI_API_KEY")
	cmd.AddCommand(newStartCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}
