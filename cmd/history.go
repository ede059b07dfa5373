package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the chats of a folder",
	Long: `Fetches the stored chats of a folder from the server. With --local the
history cache on this machine is shown instead and no request is made.`,
	RunE: runHistory,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete one chat or every chat of a folder",
	RunE:  runDelete,
}

func init() {
	historyCmd.Flags().StringP("folder", "f", "", "folder id")
	historyCmd.Flags().IntP("last", "n", 0, "only show the last N chats")
	historyCmd.Flags().Bool("local", false, "show the local history cache")

	deleteCmd.Flags().StringP("folder", "f", "", "folder id")
	deleteCmd.MarkFlagRequired("folder")
	deleteCmd.Flags().String("chat", "", "id of the chat to delete")
	deleteCmd.Flags().Bool("all", false, "delete every chat in the folder")
	deleteCmd.MarkFlagsMutuallyExclusive("chat", "all")
	deleteCmd.MarkFlagsOneRequired("chat", "all")
}

func openLocalHistory() (*chat.History, error) {
	path := config.Get().History.File
	if path != "" {
		path = config.BuildSettingsPath(path)
	}
	return chat.NewHistory(path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	folder, _ := cmd.Flags().GetString("folder")
	last, _ := cmd.Flags().GetInt("last")
	local, _ := cmd.Flags().GetBool("local")

	var msgs []*chat.Message
	if local {
		history, err := openLocalHistory()
		if err != nil {
			return err
		}
		msgs = history.GetMessages()
	} else {
		if folder == "" {
			return fmt.Errorf("--folder is required unless --local is set")
		}
		fetched, err := newDocsClient().ChatHistory(cmd.Context(), folder)
		if err != nil {
			return err
		}
		msgs = fetched
	}

	if last > 0 && last < len(msgs) {
		msgs = msgs[len(msgs)-last:]
	}

	out := cmd.OutOrStdout()
	r := newRenderer(cmd)
	if len(msgs) == 0 {
		fmt.Fprintln(out, r.Muted("No chats yet."))
		return nil
	}
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, r.HistoryEntry(m))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	folder, _ := cmd.Flags().GetString("folder")
	chatID, _ := cmd.Flags().GetString("chat")
	all, _ := cmd.Flags().GetBool("all")

	client := newDocsClient()
	out := cmd.OutOrStdout()

	if all {
		if err := client.DeleteAllChats(cmd.Context(), folder); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted all chats in %s\n", folder)
		return nil
	}

	if err := client.DeleteChat(cmd.Context(), folder, chatID); err != nil {
		return err
	}

	if history, err := openLocalHistory(); err == nil {
		if _, err := history.Remove(chatID); err != nil {
			logger.Warn("Failed to update local history: %v", err)
		}
	}
	fmt.Fprintf(out, "Deleted chat %s\n", chatID)
	return nil
}
