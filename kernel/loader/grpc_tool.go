package loader

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

// GRPCDialer opens a channel to a tool module's endpoint. The default is
// grpc.NewClient with insecure transport credentials, suitable for the
// loopback deployments this kernel targets; production deployments should
// supply a Dialer using real TLS credentials.
type GRPCDialer func(ctx context.Context, endpoint string) (*grpc.ClientConn, error)

// DefaultGRPCDialer dials endpoint with insecure transport credentials.
func DefaultGRPCDialer(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	return grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// The wire contract (spec.md §6) is GetSpec(Empty) -> {name, description,
// parameters_json} and Execute({input_bytes, content_type}) ->
// {success, output_bytes, content_type, error?}. Rather than hand-written
// .pb.go output (unreliable to author correctly without running protoc),
// messages are framed as structpb.Struct/emptypb.Empty: genuine generated
// protobuf messages already compiled into google.golang.org/protobuf, with
// JSON as the field encoding for the mandatory baseline content type.
const (
	toolServiceGetSpec = "/amplifier.tool.v1.ToolService/GetSpec"
	toolServiceExecute = "/amplifier.tool.v1.ToolService/Execute"
)

// grpcTool adapts a remote tool module, fetched once via GetSpec, to the
// moduleapi.Tool contract. Execute never returns a transport error to the
// caller for a remote-side failure: per spec.md §4.7, it returns a
// failure-shaped ToolResult instead.
type grpcTool struct {
	conn        *grpc.ClientConn
	name        string
	description string
}

func fetchGRPCToolSpec(ctx context.Context, conn *grpc.ClientConn) (name, description string, err error) {
	reply := &structpb.Struct{}
	if err := conn.Invoke(ctx, toolServiceGetSpec, &emptypb.Empty{}, reply); err != nil {
		return "", "", fmt.Errorf("loader: GetSpec rpc: %w", err)
	}
	fields := reply.GetFields()
	return fields["name"].GetStringValue(), fields["description"].GetStringValue(), nil
}

func (t *grpcTool) Name() string        { return t.name }
func (t *grpcTool) Description() string { return t.description }

func (t *grpcTool) Execute(ctx context.Context, input []byte) (moduleapi.ToolResult, error) {
	req, err := structpb.NewStruct(map[string]any{
		"input_bytes":  base64.StdEncoding.EncodeToString(input),
		"content_type": "application/json",
	})
	if err != nil {
		return moduleapi.ToolResult{}, fmt.Errorf("loader: encoding execute request: %w", err)
	}

	reply := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, toolServiceExecute, req, reply); err != nil {
		// Transport failure talking to the remote module: surfaced as a
		// failure-shaped result, not a raised error, per spec.md §4.7.
		return moduleapi.NewToolResult(false, "", fmt.Sprintf("rpc error calling tool %q: %v", t.name, err)), nil
	}

	fields := reply.GetFields()
	success := fields["success"].GetBoolValue()
	errMsg := fields["error"].GetStringValue()
	outputB64 := fields["output_bytes"].GetStringValue()
	output, decodeErr := base64.StdEncoding.DecodeString(outputB64)
	if decodeErr != nil {
		return moduleapi.NewToolResult(false, "", fmt.Sprintf("decoding tool %q output: %v", t.name, decodeErr)), nil
	}
	return moduleapi.NewToolResult(success, string(output), errMsg), nil
}

// loadGRPCTool dials endpoint, fetches the module's self-describing spec,
// and returns a MountFn wrapping it as a Tool mounted under its declared
// name (spec.md §4.7 rule 2).
func (l *Loader) loadGRPCTool(ctx context.Context, moduleID, endpoint string) (MountFn, error) {
	dial := l.dialGRPC
	if dial == nil {
		dial = DefaultGRPCDialer
	}
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("loader: dialing grpc endpoint %q for %q: %w", endpoint, moduleID, err)
	}

	name, description, err := fetchGRPCToolSpec(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("loader: fetching spec for %q: %w", moduleID, err)
	}
	if name == "" {
		name = moduleID
	}

	tool := &grpcTool{conn: conn, name: name, description: description}
	return func(ctx context.Context, m Mounter) (func(context.Context) error, error) {
		if err := m.Mount(ctx, "tools", name, tool); err != nil {
			return nil, err
		}
		return func(context.Context) error { return conn.Close() }, nil
	}, nil
}
