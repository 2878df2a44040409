package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func GetChatsCommand() *cobra.Command {
	chatsCmd := &cobra.Command{
		Use:   "chats",
		Short: "List and manage your chats",
	}

	chatsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List your chats, most recent first",
		Args:  cobra.NoArgs,
		RunE:  runChatsList,
	}

	chatsDeleteCmd := &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat and its messages",
		Args:  cobra.ExactArgs(1),
		RunE:  runChatsDelete,
	}

	chatsModelCmd := &cobra.Command{
		Use:   "model <chat-id> <model>",
		Short: "Switch the model of a chat",
		Args:  cobra.ExactArgs(2),
		RunE:  runChatsModel,
	}

	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsDeleteCmd)
	chatsCmd.AddCommand(chatsModelCmd)
	return chatsCmd
}

func runChatsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	chats, err := a.client.ListChats(cmd.Context(), a.cfg.OwnerID)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	if len(chats) == 0 {
		fmt.Println("No chats yet. Start one with: undercurrent chat")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTOKENS\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Model, c.TotalTokens, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runChatsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.client.DeleteChat(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	fmt.Printf("%s Deleted chat %s\n", color.GreenString("✓"), args[0])
	return nil
}

func runChatsModel(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.client.UpdateChatModel(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("switch model: %w", err)
	}
	fmt.Printf("%s Chat %s now uses %s\n", color.GreenString("✓"), args[0], color.CyanString("%s", args[1]))
	return nil
}
