package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSendCmd(state *cliState) *cobra.Command {
	flags := &descriptorFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Execute a one-shot request (HTTP, GraphQL, or unary gRPC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.build(state)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if d.Protocol.Streaming() {
				// Unary gRPC goes through a short-lived session.
				doc, err := state.engine.Connect(ctx, d)
				if err != nil {
					return err
				}
				defer state.engine.Detach(doc.SessionID)

				if err := state.engine.Send(ctx, doc.SessionID, []byte(d.Body)); err != nil {
					return err
				}
				return waitForResponse(cmd, state, doc.SessionID)
			}

			doc, err := state.engine.Execute(ctx, d)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// waitForResponse subscribes to a unary session and prints the response or
// error event as it lands.
func waitForResponse(cmd *cobra.Command, state *cliState, sessionID string) error {
	sub, err := state.engine.Subscribe(sessionID)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	for ev := range sub.C {
		switch {
		case ev.Error != nil:
			return fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message)
		case len(ev.Data) > 0 && !ev.Kind.System():
			if ev.Kind.Direction() == "received" {
				fmt.Fprintln(cmd.OutOrStdout(), string(ev.Data))
				return nil
			}
		}
	}
	return fmt.Errorf("session ended without a response")
}
