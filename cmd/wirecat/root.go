package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wirecat/wirecat/internal/config"
	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/engine"
	"github.com/wirecat/wirecat/internal/logging"
	"github.com/wirecat/wirecat/internal/storage"
)

// cliState carries the wired engine between the root command and its
// subcommands.
type cliState struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	var (
		configPath string
		debugFlag  bool
	)

	root := &cobra.Command{
		Use:           "wirecat",
		Short:         "Protocol request engine for HTTP, WebSocket, gRPC, and GraphQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if debugFlag {
				cfg.Debug = true
			}
			state.cfg = cfg
			state.logger = logging.NewConsoleLogger(cfg.Debug)

			storagePath := cfg.StoragePath
			if storagePath == "" {
				storagePath, err = storage.DefaultStoragePath()
				if err != nil {
					return fmt.Errorf("determine storage path: %w", err)
				}
			}
			repo := storage.NewJSONRepository(storagePath, cfg.HistoryLimit, state.logger)

			state.engine = engine.New(cfg, repo, state.logger, engine.WithSink(printSink(cmd)))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(
		newSendCmd(state),
		newListenCmd(state),
		newDiscoverCmd(state),
		newHistoryCmd(state),
		newRequestsCmd(state),
	)
	return root
}

// printSink renders engine notifications as single JSON lines on stdout.
func printSink(cmd *cobra.Command) engine.Sink {
	return func(n engine.Notification) {
		line, err := json.Marshal(map[string]any{
			"event":   n.Name,
			"session": n.Session.ID,
			"ts":      n.Event.Timestamp,
			"data":    string(n.Event.Data),
			"error":   n.Event.Error,
			"reason":  n.Event.Reason,
		})
		if err != nil {
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(line))
	}
}

// descriptorFlags collects the request-shaping flags shared by send, listen
// and discover.
type descriptorFlags struct {
	protocol  string
	url       string
	method    string
	headers   []string
	body      string
	saved     string
	service   string
	rpcMethod string
	callType  string
	protoPath string
	reflect   bool
	operation string
	variables string
}

func (f *descriptorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.protocol, "protocol", "p", "", "protocol tag (http, https, ws, wss, grpc, grpcs, graphql)")
	cmd.Flags().StringVarP(&f.url, "url", "u", "", "target URL or host:port")
	cmd.Flags().StringVarP(&f.method, "method", "X", "", "HTTP method")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "request header as key:value, repeatable")
	cmd.Flags().StringVarP(&f.body, "body", "d", "", "request body")
	cmd.Flags().StringVar(&f.saved, "request", "", "load a saved request by name")
	cmd.Flags().StringVar(&f.service, "service", "", "gRPC service full name")
	cmd.Flags().StringVar(&f.rpcMethod, "rpc", "", "gRPC method name")
	cmd.Flags().StringVar(&f.callType, "call-type", "", "gRPC call type (unary, server_streaming, client_streaming, bidirectional_streaming)")
	cmd.Flags().StringVar(&f.protoPath, "proto", "", "path to a .proto file for schema resolution")
	cmd.Flags().BoolVar(&f.reflect, "reflection", false, "resolve gRPC schema via server reflection")
	cmd.Flags().StringVar(&f.operation, "operation", "", "GraphQL operation name")
	cmd.Flags().StringVar(&f.variables, "variables", "", "GraphQL variables as JSON")
}

// build assembles a RequestDescriptor from flags, starting from a saved
// request when --request names one.
func (f *descriptorFlags) build(state *cliState) (descriptor.RequestDescriptor, error) {
	var d descriptor.RequestDescriptor
	if f.saved != "" {
		loaded, err := state.engine.LoadRequest(f.saved)
		if err != nil {
			return d, err
		}
		d = *loaded
	}

	if f.protocol != "" {
		d.Protocol = descriptor.Protocol(f.protocol)
	}
	if f.url != "" {
		d.URL = f.url
	}
	if f.method != "" {
		d.Method = f.method
	}
	if f.body != "" {
		d.Body = f.body
	}
	for _, raw := range f.headers {
		key, value, found := strings.Cut(raw, ":")
		if !found {
			return d, fmt.Errorf("malformed header %q, want key:value", raw)
		}
		d.Headers = append(d.Headers, descriptor.Header{
			Key:     strings.TrimSpace(key),
			Value:   strings.TrimSpace(value),
			Enabled: true,
		})
	}

	if f.service != "" || f.rpcMethod != "" || f.protoPath != "" || f.reflect {
		if d.Grpc == nil {
			d.Grpc = &descriptor.GrpcExtras{}
		}
		if f.service != "" {
			d.Grpc.Service = f.service
		}
		if f.rpcMethod != "" {
			d.Grpc.Method = f.rpcMethod
		}
		if f.callType != "" {
			d.Grpc.CallType = descriptor.CallType(f.callType)
		}
		if f.protoPath != "" {
			d.Grpc.ProtoPath = f.protoPath
		}
		if f.reflect {
			d.Grpc.UseReflection = true
		}
	}

	if f.operation != "" || f.variables != "" {
		if d.GraphQL == nil {
			d.GraphQL = &descriptor.GraphQLExtras{}
		}
		if f.operation != "" {
			d.GraphQL.OperationName = f.operation
		}
		if f.variables != "" {
			d.GraphQL.Variables = json.RawMessage(f.variables)
		}
	}
	return d, nil
}
