package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/club-portal-assistant/internal/app/bootstrap"
	"github.com/wolfman30/club-portal-assistant/internal/assistant"
	appconfig "github.com/wolfman30/club-portal-assistant/internal/config"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(appconfig.Load()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type cliOptions struct {
	provider  string
	remoteURL string
	userID    string
	visitorID string
}

func newRootCmd(cfg *appconfig.Config) *cobra.Command {
	opts := cliOptions{visitorID: "cli"}

	cmd := &cobra.Command{
		Use:   "assistant-cli",
		Short: "Chat with the club assistant from a terminal",
		Long: `Terminal chat against the assistant engine.

Commands inside the session:
  /clear    start over
  /history  reprint the conversation
  #N        pick suggested reply N
  /quit     exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.provider != "" {
				cfg.ReplyProvider = opts.provider
			}
			if opts.remoteURL != "" {
				cfg.RemoteChatURL = opts.remoteURL
			}
			return runSession(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "reply provider: rules or remote (default from REPLY_PROVIDER)")
	cmd.Flags().StringVar(&opts.remoteURL, "remote-url", "", "remote chat endpoint (default from REMOTE_CHAT_URL)")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "signed-in user id; empty chats anonymously")
	cmd.Flags().StringVar(&opts.visitorID, "visitor", opts.visitorID, "visitor id used when no user is given")
	return cmd
}

func runSession(ctx context.Context, cfg *appconfig.Config, opts cliOptions, in io.Reader, out io.Writer) error {
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, "text")

	provider, err := bootstrap.BuildReplyProvider(cfg, nil)
	if err != nil {
		return err
	}

	m, err := assistant.Mount(ctx, assistant.ManagerOptions{
		Owner:    assistant.OwnerIdentity(opts.userID, opts.visitorID),
		Provider: provider,
		Store:    assistant.NewMemoryStore(),
		Delay:    bootstrap.DelayPolicy(cfg),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer m.Unmount()
	m.Open()

	return repl(ctx, m, in, out, cfg.RemoteChatTimeout+cfg.TypingMaxDelay)
}

func repl(ctx context.Context, m *assistant.Manager, in io.Reader, out io.Writer, turnTimeout time.Duration) error {
	if turnTimeout <= 0 {
		turnTimeout = 15 * time.Second
	}
	printLog(out, m.Snapshot())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			if err := m.ClearConversation(ctx); err != nil {
				return err
			}
			printLog(out, m.Snapshot())
			continue
		case line == "/history":
			printLog(out, m.Snapshot())
			continue
		case strings.HasPrefix(line, "#"):
			picked, ok := pickSuggestion(m.Snapshot(), line)
			if !ok {
				fmt.Fprintln(out, "  (no such suggestion)")
				continue
			}
			line = picked
			fmt.Fprintf(out, "you: %s\n", line)
		}

		if _, err := m.SendUserMessage(ctx, line, nil); err != nil {
			if errors.Is(err, assistant.ErrEmptyMessage) || errors.Is(err, assistant.ErrTurnInProgress) {
				continue
			}
			return err
		}
		fmt.Fprintln(out, "  assistant is typing...")

		waitCtx, cancel := context.WithTimeout(ctx, turnTimeout)
		err := m.WaitIdle(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("waiting for reply: %w", err)
		}
		printReply(out, m.Snapshot())
	}
}

func pickSuggestion(snap assistant.Snapshot, token string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(token, "#"))
	if err != nil || n < 1 || n > len(snap.QuickReplies) {
		return "", false
	}
	return snap.QuickReplies[n-1], true
}

func printLog(out io.Writer, snap assistant.Snapshot) {
	for _, msg := range snap.Messages {
		printMessage(out, msg)
	}
	printSuggestions(out, snap.QuickReplies)
}

func printReply(out io.Writer, snap assistant.Snapshot) {
	if n := len(snap.Messages); n > 0 {
		printMessage(out, snap.Messages[n-1])
	}
	printSuggestions(out, snap.QuickReplies)
}

func printMessage(out io.Writer, msg assistant.Message) {
	who := "assistant"
	if msg.Author == assistant.AuthorUser {
		who = "you"
	}
	fmt.Fprintf(out, "%s: %s\n", who, msg.Text)
}

func printSuggestions(out io.Writer, suggestions []string) {
	for i, s := range suggestions {
		fmt.Fprintf(out, "  #%d %s\n", i+1, s)
	}
}
