package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/twin"
)

func newAskCmd() *cobra.Command {
	var (
		model   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the twin a single question",
		Long: `Run one chat turn with retrieved context and print the reply.

Examples:
  dtwin ask "What are the three strategic pillars?"
  dtwin ask "Summarise last quarter's board pack" --model gpt-3.5-turbo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			var observer twin.Observer
			if verbose || ws.cfg.Output.Verbose {
				observer = func(s twin.State) { fmt.Fprintf(os.Stderr, "  [%s]\n", s) }
			}
			orch, err := ws.orchestrator(observer)
			if err != nil {
				return err
			}

			_, res := runTurn(context.Background(), orch, ws.newSession(model), question)
			for _, w := range res.Warnings {
				warn("%v", w)
			}
			fmt.Println(res.Reply)
			if res.Failed {
				return errors.New("chat request failed; nothing was written to memory")
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "  model: %s, saved to memory: %t\n", res.Model, res.MemoryWritten)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "model hint, e.g. gpt-4 or gpt-3.5-turbo")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show turn states and the model that answered")

	return cmd
}
