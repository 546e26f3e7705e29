package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"threadsync/internal/run"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts run.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the active thread's ready media",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				threadID := client.store.ActiveThreadID()
				if err := client.starter.Start(threadID, opts); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run submitted on thread %s (%d tokens reserved, %d available)\n",
					threadID, client.ledger.Held(), client.ledger.Available())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Transcribe, "transcribe", false, "Transcribe the media")
	cmd.Flags().StringVar(&opts.Model, "model", "small", "Transcription model")
	cmd.Flags().StringSliceVar(&opts.TranslateTo, "translate-to", nil, "Target languages for translation")
	cmd.Flags().BoolVar(&opts.Summarize, "summarize", false, "Summarize the transcript")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed operation on a chat item",
	}

	var model string
	transcribeCmd := &cobra.Command{
		Use:   "transcribe <chat-item-id>",
		Short: "Retry a failed transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				return client.starter.RetryTranscribe(client.store.ActiveThreadID(), args[0], model)
			})
		},
	}
	transcribeCmd.Flags().StringVar(&model, "model", "small", "Transcription model")

	translateCmd := &cobra.Command{
		Use:   "translate <chat-item-id> <lang>",
		Short: "Retry a failed translation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				return client.starter.RetryTranslate(client.store.ActiveThreadID(), args[0], args[1])
			})
		},
	}

	summarizeCmd := &cobra.Command{
		Use:   "summarize <chat-item-id>",
		Short: "Retry a failed summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				return client.starter.RetrySummarize(client.store.ActiveThreadID(), args[0])
			})
		},
	}

	retryCmd.AddCommand(transcribeCmd)
	retryCmd.AddCommand(translateCmd)
	retryCmd.AddCommand(summarizeCmd)
	return retryCmd
}

func newBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the token balance and outstanding reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balance:   %d\nReserved:  %d\nAvailable: %d\n",
					client.ledger.Balance(), client.ledger.Held(), client.ledger.Available())
				return nil
			})
		},
	}
}
