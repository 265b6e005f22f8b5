package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/tui"
	"github.com/memvra/dtwin/internal/twin"
)

func newChatCmd() *cobra.Command {
	var (
		model  string
		useTUI bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation with the twin",
		Long: `Chat with the digital twin. Each message retrieves context from your
documents and past conversations; replies are written back to memory.

Say "enable kryten mode" or "disable kryten mode" to toggle formal replies.
Type /reset to clear the conversation and /quit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			orch, err := ws.orchestrator(nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			state := ws.newSession(model)
			if useTUI {
				p := tea.NewProgram(tui.New(ctx, orch, ws.name(), state), tea.WithAltScreen())
				_, err := p.Run()
				return err
			}
			return runREPL(ctx, orch, ws.name(), state, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "model hint, e.g. gpt-4 or gpt-3.5-turbo")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "use the full-screen terminal UI")

	return cmd
}

// turner runs one chat turn.
type turner interface {
	HandleTurn(ctx context.Context, state twin.SessionState, input string) (twin.SessionState, twin.TurnResult)
}

// runREPL reads one message per line until EOF or /quit.
func runREPL(ctx context.Context, t turner, name string, state twin.SessionState, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Chatting with %s. Type /reset to clear, /quit to leave.\n\n", name)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			state = state.Reset()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		var res twin.TurnResult
		state, res = runTurn(ctx, t, state, line)
		printTurn(out, name, res)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// runTurn shows a spinner on stderr while the turn is in flight.
func runTurn(ctx context.Context, t turner, state twin.SessionState, input string) (twin.SessionState, twin.TurnResult) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("  Thinking"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()
	return t.HandleTurn(ctx, state, input)
}

func printTurn(out io.Writer, name string, res twin.TurnResult) {
	switch res.Command {
	case twin.CommandEnableKryten:
		fmt.Fprintln(out, "[kryten mode enabled]")
	case twin.CommandDisableKryten:
		fmt.Fprintln(out, "[kryten mode disabled]")
	}
	fmt.Fprintf(out, "\n%s: %s\n", name, res.Reply)
	if !res.Failed {
		fmt.Fprintf(out, "  (model: %s)\n", res.Model)
	}
	fmt.Fprintln(out)
	for _, w := range res.Warnings {
		warn("%v", w)
	}
}
