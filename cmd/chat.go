package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat <service> [message]",
	Short: "Chat with the configured model using the tools of a service",
	Long: `Sends a conversation to the manager's chat loop. The model may call the
tools of the service; every call is printed as it happens.

With a message the answer is printed and the command exits. Without one an
interactive session starts that keeps the conversation history. Inside it:
  /clear   forget the history
  /tools   list the tools of the service
  /exit    leave (Ctrl+D works too)`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		s := &chatSession{
			client:  clientFlags.Client(),
			printer: printer,
			service: args[0],
		}
		if len(args) > 1 {
			return s.send(cmd.Context(), strings.Join(args[1:], " "))
		}
		return s.repl(cmd.Context())
	},
}

type chatSession struct {
	client  *cli.Client
	printer *cli.Printer
	service string
	history []api.ChatMessage
}

var errChatFailed = errors.New("chat failed")

// send runs one round trip. The user message only stays in the history when the
// model answered.
func (s *chatSession) send(ctx context.Context, message string) error {
	s.history = append(s.history, api.ChatMessage{Role: "user", Content: message})

	var answer string
	var failed bool
	err := s.client.ChatStream(ctx, s.service, s.history, func(ev api.ChatEvent) {
		s.printer.ChatEvent(ev)
		switch ev.Type {
		case api.ChatEventResponse:
			answer = ev.Content
		case api.ChatEventError:
			failed = true
		}
	})
	if err == nil && failed {
		err = errChatFailed
	}
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		return err
	}
	s.history = append(s.history, api.ChatMessage{Role: "assistant", Content: answer})
	return nil
}

func (s *chatSession) repl(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.service + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".local_mcp_manager_chat_history"),
		AutoComplete:    readline.NewPrefixCompleter(readline.PcItem("/clear"), readline.PcItem("/tools"), readline.PcItem("/exit")),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	out := s.printer.Out
	cli.Fprintln(out, s.printer.Quiet, fmt.Sprintf("Chatting with the tools of %s. Type /exit to leave.", s.service))

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			s.history = nil
			cli.Fprintln(out, false, cli.FormatSuccess("History cleared"))
			continue
		case "/tools":
			entry, err := s.client.Capabilities(ctx, s.service, false)
			if err != nil {
				fmt.Fprintln(out, cli.FormatError(err))
			} else if err := s.printer.Capabilities(entry); err != nil {
				return err
			}
			continue
		}

		if err := s.send(ctx, input); err != nil && !errors.Is(err, errChatFailed) {
			if cli.IsNotFound(err) || cli.IsUnavailable(err) {
				return err
			}
			fmt.Fprintln(out, cli.FormatError(err))
		}
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
