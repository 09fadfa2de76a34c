package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/export"
	"github.com/parleybot/parley/internal/store"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Browse recorded conversations",
	}

	cmd.AddCommand(newConversationsListCmd())
	cmd.AddCommand(newConversationsShowCmd())
	cmd.AddCommand(newConversationsExportCmd())
	cmd.AddCommand(newConversationsDeleteCmd())
	return cmd
}

// openStore opens the conversation database at the standard path.
func openStore() (*store.ConversationStore, func(), error) {
	db, err := store.Open(paths.DatabasePath(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return store.NewConversationStore(db), func() { db.Close() }, nil
}

func newConversationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, closeDB, err := openStore()
			if err != nil {
				return err
			}
			defer closeDB()

			convs, err := cs.ListConversations()
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("no conversations recorded")
				return nil
			}
			for _, c := range convs {
				fmt.Printf("%s  %s  %s vs %s  %d tokens  %s %s\n",
					c.ID,
					c.CreatedAt.Format("2006-01-02 15:04"),
					c.BotA.Name, c.BotB.Name,
					c.TotalTokens,
					c.TotalCost.String(),
					c.Title,
				)
			}
			return nil
		},
	}
}

func newConversationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, closeDB, err := openStore()
			if err != nil {
				return err
			}
			defer closeDB()

			conv, err := cs.GetConversation(args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			msgs, err := cs.ListMessages(conv.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s — %s vs %s\n\n", conv.Title, conv.BotA.Name, conv.BotB.Name)
			if err := export.Render(os.Stdout, export.FormatTXT, msgs); err != nil {
				return err
			}

			stats, err := cs.AggregateStats(conv.ID)
			if err == nil && stats != nil {
				fmt.Printf("\n%d tokens, %s total\n", stats.TotalTokens, stats.TotalCost.String())
			}
			return nil
		},
	}
}

func newConversationsExportCmd() *cobra.Command {
	var (
		formatName string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation to CSV or TXT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}

			cs, closeDB, err := openStore()
			if err != nil {
				return err
			}
			defer closeDB()

			conv, err := cs.GetConversation(args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			msgs, err := cs.ListMessages(conv.ID)
			if err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return export.Render(out, format, msgs)
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "txt", "export format (csv, txt)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newConversationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, closeDB, err := openStore()
			if err != nil {
				return err
			}
			defer closeDB()

			if !cs.DeleteConversation(args[0]) {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
