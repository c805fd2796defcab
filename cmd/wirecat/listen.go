package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newListenCmd(state *cliState) *cobra.Command {
	flags := &descriptorFlags{}
	var (
		interactive bool
		exportPath  string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Open a streaming session (WebSocket or gRPC stream) and print events",
		Long: `Opens a streaming session against the target and prints every session
event as a JSON line. With --stdin, each line read from standard input is
sent on the session. Interrupt (Ctrl-C) closes the session gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.build(state)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			doc, err := state.engine.Connect(ctx, d)
			if err != nil {
				return err
			}
			defer state.engine.Detach(doc.SessionID)

			sub, err := state.engine.Subscribe(doc.SessionID)
			if err != nil {
				return err
			}
			defer sub.Cancel()

			if interactive {
				go func() {
					scanner := bufio.NewScanner(os.Stdin)
					for scanner.Scan() {
						line := scanner.Bytes()
						if len(line) == 0 {
							continue
						}
						payload := make([]byte, len(line))
						copy(payload, line)
						if err := state.engine.Send(ctx, doc.SessionID, payload); err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
						}
					}
				}()
			}

			// The sink already prints events; this loop just watches for the
			// session to end or the user to interrupt.
			for {
				select {
				case <-ctx.Done():
					closeCtx := context.Background()
					if err := state.engine.Close(closeCtx, doc.SessionID, 1000, "interrupted"); err != nil {
						_ = state.engine.Cancel(closeCtx, doc.SessionID)
					}
					return export(cmd, state, doc.SessionID, exportPath)
				case _, ok := <-sub.C:
					if !ok {
						return export(cmd, state, doc.SessionID, exportPath)
					}
					info, err := state.engine.Session(doc.SessionID)
					if err != nil {
						return export(cmd, state, doc.SessionID, exportPath)
					}
					switch info.State {
					case "closed", "errored", "cancelled":
						return export(cmd, state, doc.SessionID, exportPath)
					}
				}
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&interactive, "stdin", false, "send each stdin line on the session")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the session history as CSV to this path on exit")
	return cmd
}

// export writes the session's event history as CSV when a path was given.
func export(cmd *cobra.Command, state *cliState, sessionID, path string) error {
	if path == "" {
		return nil
	}
	csv, err := state.engine.ExportCSV(sessionID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "session history exported to %s\n", path)
	return nil
}
