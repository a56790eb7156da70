package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"study-companion/internal/tui"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Open the study session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	rt, err := newRuntime(ctx, opts, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	model := tui.NewApp(ctx, rt.session, rt.log)
	defer model.Close()

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
