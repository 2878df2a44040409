package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	ownerID   string
)

func main() {
	// Load .env file (silently ignore if it doesn't exist)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "undercurrent",
		Short: "Chat with the Undercurrent script assistant",
		Long: `A terminal host for Undercurrent chats. It streams assistant replies,
shows tool activity and prints script updates as they happen.

Examples:
  undercurrent chat                    # open your latest chat
  undercurrent chat --model dev-fast   # pick the model for new chats
  undercurrent chats list`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Gateway server URL (defaults to API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "Owner id sent with every request (defaults to OWNER_ID)")

	rootCmd.AddCommand(GetChatCommand())
	rootCmd.AddCommand(GetChatsCommand())
	return rootCmd
}
