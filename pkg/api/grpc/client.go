package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// Client is a thin client for the Algebra service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply runs one pipeline operation. variable may be zero and bindings nil.
func (c *Client) Apply(ctx context.Context, op worksheet.Op, formula string, variable rune, bindings map[rune]float64) (*structpb.Struct, error) {
	in := map[string]interface{}{"formula": formula}
	if variable != 0 {
		in["variable"] = string(variable)
	}
	if len(bindings) > 0 {
		named := make(map[string]interface{}, len(bindings))
		for name, v := range bindings {
			named[string(name)] = v
		}
		in["bindings"] = named
	}
	return c.invoke(ctx, methodName(op), in)
}

// RunStored executes a stored worksheet by resource name.
func (c *Client) RunStored(ctx context.Context, name string) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRunWorksheet, map[string]interface{}{"name": name})
}

// RunSource executes an inline worksheet definition.
func (c *Client) RunSource(ctx context.Context, source string) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRunWorksheet, map[string]interface{}{"source": source})
}

// ListWorksheets lists stored worksheets.
func (c *Client) ListWorksheets(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListWorksheets, nil)
}

// ErrorDetail extracts the pipeline error payload attached to a status
// error, or nil when there is none.
func ErrorDetail(err error) *structpb.Struct {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			return s
		}
	}
	return nil
}

// IsUnavailable reports whether err means the server could not be reached.
func IsUnavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
