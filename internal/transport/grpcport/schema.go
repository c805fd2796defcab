package grpcport

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/domain"
	"github.com/wirecat/wirecat/internal/errors"
)

// resolveMethod produces the method descriptor for a gRPC request, either
// by parsing the configured proto file or by asking the server via
// reflection. The descriptor's stream flags are cross-checked against the
// declared call type so a mismatched descriptor fails before dispatch.
func resolveMethod(ctx context.Context, conn *grpc.ClientConn, extras *descriptor.GrpcExtras) (*desc.MethodDescriptor, error) {
	var (
		sd  *desc.ServiceDescriptor
		err error
	)
	if extras.UseReflection {
		sd, err = reflectService(ctx, conn, extras.Service)
	} else {
		sd, err = parseService(extras.ProtoPath, extras.Service)
	}
	if err != nil {
		return nil, err
	}

	md := sd.FindMethodByName(extras.Method)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in service %s", extras.Method, extras.Service)
	}

	if actual := callTypeOf(md); actual != extras.CallType {
		return nil, errors.ValidationError{
			Field:   "grpc.callType",
			Message: fmt.Sprintf("method %s is %s, not %s", extras.Method, actual, extras.CallType),
		}
	}
	return md, nil
}

// parseService loads a service descriptor from a proto file on disk.
// Imports resolve relative to the proto file's directory.
func parseService(protoPath, service string) (*desc.ServiceDescriptor, error) {
	parser := protoparse.Parser{
		ImportPaths:           []string{filepath.Dir(protoPath)},
		IncludeSourceCodeInfo: false,
	}
	fds, err := parser.ParseFiles(filepath.Base(protoPath))
	if err != nil {
		return nil, fmt.Errorf("parse proto %s: %w", protoPath, err)
	}

	for _, fd := range fds {
		if sd := fd.FindService(service); sd != nil {
			return sd, nil
		}
		// Dependencies pulled in by imports may define the service.
		for _, dep := range fd.GetDependencies() {
			if sd := dep.FindService(service); sd != nil {
				return sd, nil
			}
		}
	}
	return nil, fmt.Errorf("service %s not found in %s", service, protoPath)
}

// reflectService resolves a service descriptor via server reflection.
func reflectService(ctx context.Context, conn *grpc.ClientConn, service string) (*desc.ServiceDescriptor, error) {
	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()

	sd, err := client.ResolveService(service)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", errors.ErrReflectionUnavailable, service, err)
	}
	return sd, nil
}

// callTypeOf derives the call type from a method descriptor's stream flags.
func callTypeOf(md *desc.MethodDescriptor) descriptor.CallType {
	switch {
	case md.IsClientStreaming() && md.IsServerStreaming():
		return descriptor.CallBidiStreaming
	case md.IsServerStreaming():
		return descriptor.CallServerStreaming
	case md.IsClientStreaming():
		return descriptor.CallClientStreaming
	}
	return descriptor.CallUnary
}

// Discover lists the services a server exposes via reflection, so hosts can
// populate method pickers. Services whose descriptors fail to resolve are
// reported with their error rather than dropped.
func Discover(ctx context.Context, req *descriptor.ConcreteRequest, logger *slog.Logger) ([]domain.Service, error) {
	conn, err := dialConn(req)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()

	names, err := client.ListServices()
	if err != nil {
		return nil, fmt.Errorf("%w: list services: %v", errors.ErrReflectionUnavailable, err)
	}

	var services []domain.Service
	for _, name := range names {
		if name == "grpc.reflection.v1alpha.ServerReflection" ||
			name == "grpc.reflection.v1.ServerReflection" {
			continue
		}

		sd, err := client.ResolveService(name)
		if err != nil {
			logger.Warn("failed to resolve service",
				slog.String("service", name),
				slog.Any("error", err),
			)
			services = append(services, domain.Service{
				Name:     shortName(name),
				FullName: name,
				Error:    err.Error(),
			})
			continue
		}
		services = append(services, convertService(sd))
	}

	logger.Info("discovered services via reflection",
		slog.Int("service_count", len(services)),
	)
	return services, nil
}

func convertService(sd *desc.ServiceDescriptor) domain.Service {
	service := domain.Service{
		Name:     sd.GetName(),
		FullName: sd.GetFullyQualifiedName(),
	}
	for _, md := range sd.GetMethods() {
		service.Methods = append(service.Methods, domain.Method{
			Name:           md.GetName(),
			FullName:       md.GetFullyQualifiedName(),
			InputType:      md.GetInputType().GetFullyQualifiedName(),
			OutputType:     md.GetOutputType().GetFullyQualifiedName(),
			IsClientStream: md.IsClientStreaming(),
			IsServerStream: md.IsServerStreaming(),
		})
	}
	return service
}

func shortName(full string) string {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '.' {
			return full[i+1:]
		}
	}
	return full
}
