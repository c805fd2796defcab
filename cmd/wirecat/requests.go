package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRequestsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Manage saved requests",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved request names",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := state.engine.ListRequests()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	saveFlags := &descriptorFlags{}
	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a request descriptor under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := saveFlags.build(state)
			if err != nil {
				return err
			}
			return state.engine.SaveRequest(args[0], d)
		},
	}
	saveFlags.register(save)

	remove := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.engine.DeleteRequest(args[0])
		},
	}

	cmd.AddCommand(list, save, remove)
	return cmd
}
