package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wirecat/wirecat/internal/descriptor"
)

func newDiscoverCmd(state *cliState) *cobra.Command {
	var (
		urlFlag string
		secure  bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List gRPC services exposed via server reflection",
		RunE: func(cmd *cobra.Command, args []string) error {
			protocol := descriptor.ProtocolGRPC
			if secure {
				protocol = descriptor.ProtocolGRPCS
			}
			services, err := state.engine.Discover(cmd.Context(), descriptor.RequestDescriptor{
				Protocol: protocol,
				URL:      urlFlag,
				Grpc: &descriptor.GrpcExtras{
					Service:       "reflection",
					Method:        "list",
					UseReflection: true,
				},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, svc := range services {
				if svc.Error != "" {
					fmt.Fprintf(out, "%s\t(unresolved: %s)\n", svc.FullName, svc.Error)
					continue
				}
				fmt.Fprintln(out, svc.FullName)
				for _, m := range svc.Methods {
					fmt.Fprintf(out, "  %s\t%s -> %s\t[%s]\n",
						m.Name, m.InputType, m.OutputType, m.CallType())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&urlFlag, "url", "u", "", "gRPC server host:port")
	cmd.Flags().BoolVar(&secure, "tls", false, "connect with TLS")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
