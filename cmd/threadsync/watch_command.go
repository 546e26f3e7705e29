package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

// watch keeps the session open and prints inbound activity until
// interrupted. It is the closest thing to the web client's live view.
func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live activity for the active thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *appClient) error {
				out := cmd.OutOrStdout()

				unsubscribe := client.session.OnMessage(func(env protocol.Envelope) {
					switch env.Type {
					case protocol.TypeChatItemProgress:
						var p protocol.ChatItemProgressPayload
						if env.DecodePayload(&p) == nil {
							fmt.Fprintf(out, "%s %s %.0f%%\n", p.ChatItemID, threads.OpKey(p.Op, p.Lang), p.Percent)
						}
					case protocol.TypeChatItemStream:
						var p protocol.ChatItemStreamPayload
						if env.DecodePayload(&p) == nil {
							fmt.Fprint(out, p.Text)
						}
					case protocol.TypeRunCompleted:
						var p protocol.RunResultPayload
						if env.DecodePayload(&p) == nil {
							fmt.Fprintf(out, "\n%s %s done (%d tokens)\n", p.ChatItemID, threads.OpKey(p.Op, p.Lang), p.Tokens)
						}
					case protocol.TypeRunFailed:
						var p protocol.RunResultPayload
						if env.DecodePayload(&p) == nil {
							fmt.Fprintf(out, "\n%s %s FAILED: %s\n", p.ChatItemID, threads.OpKey(p.Op, p.Lang), p.Error)
						}
					case protocol.TypeTokensUpdated:
						var p protocol.TokensUpdatedPayload
						if env.DecodePayload(&p) == nil {
							fmt.Fprintf(out, "balance: %d\n", p.Balance)
						}
					}
				})
				defer unsubscribe()

				if err := client.connect(defaultConnectTimeout); err != nil {
					return err
				}
				fmt.Fprintf(out, "Watching thread %s (interrupt to stop)\n", client.store.ActiveThreadID())

				stop := make(chan os.Signal, 1)
				signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(stop)
				select {
				case <-stop:
				case <-cmd.Context().Done():
				}
				return nil
			})
		},
	}
}
