package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"threadsync/internal/faults"
	"threadsync/internal/logging"
	"threadsync/internal/threads"
)

func newThreadsCommand(ctx *commandContext) *cobra.Command {
	threadsCmd := &cobra.Command{
		Use:   "threads",
		Short: "List and manage threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				if err := client.engine.SyncIndex(cmd.Context()); err != nil {
					client.log.Warn("index sync failed, showing cached threads", logging.Args(logging.Error(err))...)
				}

				active := client.store.ActiveThreadID()
				rows := make([][]string, 0)
				for _, t := range client.store.Threads() {
					marker := ""
					if t.ID == active {
						marker = "*"
					}
					rows = append(rows, []string{
						marker,
						t.ID,
						t.Title,
						strconv.Itoa(countReadyFiles(t)),
						strconv.Itoa(len(t.ChatItems)),
						formatWhen(t.LastActivity()),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"", "ID", "Title", "Ready", "Items", "Last Activity"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	threadsCmd.AddCommand(newThreadsCreateCommand(ctx))
	threadsCmd.AddCommand(newThreadsRenameCommand(ctx))
	threadsCmd.AddCommand(newThreadsDeleteCommand(ctx))
	threadsCmd.AddCommand(newThreadsSelectCommand(ctx))

	return threadsCmd
}

func newThreadsCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[0])
			if title == "" {
				return fmt.Errorf("thread title must not be empty")
			}
			return ctx.withClient(func(client *appClient) error {
				created, err := client.api.CreateThread(cmd.Context(), title)
				if err != nil {
					return err
				}
				client.store.Upsert(created)
				if err := client.store.SetActiveThreadID(created.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created thread %s (%q) and selected it\n", created.ID, created.Title)
				return nil
			})
		},
	}
}

func newThreadsRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <thread-id> <title>",
		Short: "Rename a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == threads.DefaultThreadID {
				return faults.Wrap(faults.ErrApplication, "cli", "threads-rename", "the local drafts thread cannot be renamed", nil)
			}
			return ctx.withClient(func(client *appClient) error {
				if err := client.api.RenameThread(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				if t, ok := client.store.Thread(args[0]); ok {
					t.Title = args[1]
					client.store.Upsert(t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed thread %s\n", args[0])
				return nil
			})
		},
	}
}

func newThreadsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == threads.DefaultThreadID {
				return faults.Wrap(faults.ErrApplication, "cli", "threads-delete", "the local drafts thread cannot be deleted", nil)
			}
			return ctx.withClient(func(client *appClient) error {
				if err := client.api.DeleteThread(cmd.Context(), args[0]); err != nil {
					return err
				}
				client.store.Remove(args[0])
				client.ledger.ReleaseByPrefix(args[0] + ":")
				if err := client.cache.RemoveMedia(args[0]); err != nil {
					client.log.Warn("failed to drop cached media", logging.Args(logging.String("thread_id", args[0]), logging.Error(err))...)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted thread %s\n", args[0])
				return nil
			})
		},
	}
}

func newThreadsSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <thread-id>",
		Short: "Select the active thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				if err := client.engine.Bind(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Selected thread %s\n", args[0])
				return nil
			})
		},
	}
}
