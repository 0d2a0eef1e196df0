package client

import (
	"context"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
)

const service = "/holo.Northbound/"

var subscribeDesc = &grpc.StreamDesc{
	StreamName:    "SubscribeState",
	ServerStreams: true,
}

// GRPCClient talks to the daemon's northbound gRPC service. Payloads
// are open-schema structs so the CLI stays decoupled from the daemon's
// module set.
type GRPCClient struct {
	conn  *grpc.ClientConn
	model *schema.Model
}

// Dial connects to the daemon. Connection establishment is lazy; the
// first RPC surfaces reachability problems.
func Dial(addr string, model *schema.Model) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}
	return &GRPCClient{conn: conn, model: model}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, service+method, req, resp); err != nil {
		return nil, rpcError(method, err)
	}
	return resp, nil
}

// rpcError separates daemon rejections from transport failures. The
// daemon reports constraint violations as InvalidArgument or
// FailedPrecondition; everything else is a connectivity problem.
func rpcError(op string, err error) error {
	st, ok := status.FromError(err)
	if ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.FailedPrecondition:
			return &SemanticError{Reason: st.Message()}
		}
	}
	return &TransportError{Op: op, Err: err}
}

func (c *GRPCClient) GetConfig(ctx context.Context) (*configtree.Tree, error) {
	req, _ := structpb.NewStruct(map[string]any{})
	resp, err := c.invoke(ctx, "GetConfig", req)
	if err != nil {
		return nil, err
	}
	lines := stringList(resp, "config")
	tree, err := configtree.FromSetLines(c.model, lines)
	if err != nil {
		return nil, &TransportError{Op: "GetConfig", Err: err}
	}
	return tree, nil
}

func (c *GRPCClient) GetState(ctx context.Context, path []string) ([]StateEntry, error) {
	req, _ := structpb.NewStruct(map[string]any{
		"path": joinPath(path),
	})
	resp, err := c.invoke(ctx, "GetState", req)
	if err != nil {
		return nil, err
	}
	var entries []StateEntry
	for _, v := range resp.GetFields()["entries"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		entries = append(entries, StateEntry{
			Path:  f["path"].GetStringValue(),
			Value: f["value"].GetStringValue(),
		})
	}
	return entries, nil
}

func (c *GRPCClient) Validate(ctx context.Context, setLines []string) error {
	req, _ := structpb.NewStruct(map[string]any{
		"config": toAnyList(setLines),
	})
	_, err := c.invoke(ctx, "Validate", req)
	return err
}

func (c *GRPCClient) Commit(ctx context.Context, setLines []string, comment string) error {
	req, _ := structpb.NewStruct(map[string]any{
		"config":  toAnyList(setLines),
		"comment": comment,
	})
	_, err := c.invoke(ctx, "Commit", req)
	return err
}

func (c *GRPCClient) SubscribeState(ctx context.Context, path []string) (<-chan StateDelta, error) {
	stream, err := c.conn.NewStream(ctx, subscribeDesc, service+"SubscribeState")
	if err != nil {
		return nil, rpcError("SubscribeState", err)
	}
	req, _ := structpb.NewStruct(map[string]any{
		"path": joinPath(path),
	})
	if err := stream.SendMsg(req); err != nil {
		return nil, rpcError("SubscribeState", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, rpcError("SubscribeState", err)
	}

	ch := make(chan StateDelta)
	go func() {
		defer close(ch)
		for {
			msg := &structpb.Struct{}
			// io.EOF and cancellation both end the stream quietly.
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			f := msg.GetFields()
			delta := StateDelta{
				Path:    f["path"].GetStringValue(),
				Value:   f["value"].GetStringValue(),
				Deleted: f["deleted"].GetBoolValue(),
			}
			select {
			case ch <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *GRPCClient) Version(ctx context.Context) (string, error) {
	req, _ := structpb.NewStruct(map[string]any{})
	resp, err := c.invoke(ctx, "GetVersion", req)
	if err != nil {
		return "", err
	}
	return resp.GetFields()["version"].GetStringValue(), nil
}

func joinPath(path []string) string {
	return strings.Join(path, " ")
}

func toAnyList(lines []string) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l
	}
	return out
}

func stringList(s *structpb.Struct, field string) []string {
	var out []string
	for _, v := range s.GetFields()[field].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

var _ io.Closer = (*GRPCClient)(nil)
var _ Client = (*GRPCClient)(nil)
