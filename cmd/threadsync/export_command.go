package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"threadsync/internal/language"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var langFlag string
	var outFlag string

	cmd := &cobra.Command{
		Use:   "export <chat-item-id>",
		Short: "Export a transcript or translation as SRT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				threadID := client.store.ActiveThreadID()
				item, ok := client.store.ChatItem(threadID, args[0])
				if !ok {
					return fmt.Errorf("no chat item %s on thread %s", args[0], threadID)
				}

				var content string
				if langFlag == "" {
					if item.Results.Transcript == nil || item.Results.Transcript.SRT == "" {
						return fmt.Errorf("chat item %s has no transcript yet", args[0])
					}
					content = item.Results.Transcript.SRT
				} else {
					normalized := language.Normalize(langFlag)
					translation := item.Results.Translations[normalized]
					if translation == nil || translation.SRT == "" {
						return fmt.Errorf("chat item %s has no %s translation yet", args[0], language.Display(normalized))
					}
					content = translation.SRT
				}

				if outFlag == "" || outFlag == "-" {
					fmt.Fprint(cmd.OutOrStdout(), content)
					return nil
				}
				if !strings.HasSuffix(outFlag, ".srt") {
					outFlag += ".srt"
				}
				if err := os.WriteFile(outFlag, []byte(content), 0o644); err != nil {
					return fmt.Errorf("write srt file: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outFlag)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&langFlag, "lang", "", "Export a translation instead of the transcript")
	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "Output path (default: stdout)")
	return cmd
}
