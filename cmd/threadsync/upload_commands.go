package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"threadsync/internal/threads"
	"threadsync/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var threadFlag string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a media file to the active thread's draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				threadID := threadFlag
				if threadID == "" {
					threadID = client.store.ActiveThreadID()
				} else if err := client.engine.Bind(threadID); err != nil {
					return err
				}

				source, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open media file: %w", err)
				}
				defer source.Close()
				info, err := source.Stat()
				if err != nil {
					return fmt.Errorf("stat media file: %w", err)
				}

				clientFileID := uuid.NewString()
				name := filepath.Base(args[0])
				mimeType := mime.TypeByExtension(filepath.Ext(name))
				if mimeType == "" {
					mimeType = "application/octet-stream"
				}

				// Optimistic draft entry; rolled back if the upload fails.
				client.store.UpsertDraftFile(threadID, threads.DraftFile{
					ItemID:       clientFileID,
					ClientFileID: clientFileID,
					SourceType:   "upload",
					Stage:        threads.StageUploading,
					Name:         name,
					Size:         info.Size(),
					Mime:         mimeType,
				})

				result, err := client.uploader.Upload(cmd.Context(), source, upload.FileInfo{
					ClientFileID: clientFileID,
					Name:         name,
					Mime:         mimeType,
					Size:         info.Size(),
				})
				if err != nil {
					client.store.RemoveDraftFile(threadID, clientFileID)
					return err
				}

				client.store.RemoveDraftFile(threadID, clientFileID)
				client.store.UpsertDraftFile(threadID, result.File)
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes) as draft item %s\n", name, info.Size(), result.File.ItemID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&threadFlag, "thread", "", "Target thread id (defaults to the active thread)")
	return cmd
}

func newDraftCommand(ctx *commandContext) *cobra.Command {
	draftCmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage the active thread's draft",
	}
	draftCmd.AddCommand(newDraftListCommand(ctx))
	draftCmd.AddCommand(newDraftAddURLCommand(ctx))
	draftCmd.AddCommand(newDraftRemoveCommand(ctx))
	return draftCmd
}

func newDraftListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show staged draft files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				threadID := client.store.ActiveThreadID()
				thread, ok := client.store.Thread(threadID)
				if !ok {
					return fmt.Errorf("no active thread")
				}
				rows := make([][]string, 0, len(thread.Draft.Files))
				for _, f := range thread.Draft.Files {
					rows = append(rows, []string{
						f.ItemID,
						f.Name,
						string(f.Stage),
						fmt.Sprintf("%d", f.Size),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Item", "Name", "Stage", "Bytes"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newDraftAddURLCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add-url <url>",
		Short: "Attach URL-sourced media to the active thread's draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				threadID := client.store.ActiveThreadID()
				file, err := client.api.AddDraftURL(cmd.Context(), threadID, args[0])
				if err != nil {
					return err
				}
				client.store.UpsertDraftFile(threadID, *file)
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s as draft item %s\n", args[0], file.ItemID)
				return nil
			})
		},
	}
}

func newDraftRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <item-id>",
		Short: "Remove a staged file from the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				threadID := client.store.ActiveThreadID()
				if err := client.api.DeleteDraftFile(cmd.Context(), threadID, args[0]); err != nil {
					return err
				}
				if !client.store.RemoveDraftFile(threadID, args[0]) {
					return fmt.Errorf("no draft item %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed draft item %s\n", args[0])
				return nil
			})
		},
	}
}
