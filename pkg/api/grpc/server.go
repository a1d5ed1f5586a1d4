// Package grpcapi serves the formula pipeline and worksheet runs over gRPC.
//
// The service has no generated stubs: requests and responses are
// google.protobuf.Struct messages and the service descriptor is built by
// hand, so any gRPC client can call it with the standard proto codec.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/store"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "algebra.v1.Algebra"

// Method names beyond the per-operation ones (Tokenize, Parse, ...).
const (
	MethodRunWorksheet   = "RunWorksheet"
	MethodListWorksheets = "ListWorksheets"
)

// Server implements the Algebra gRPC service.
type Server struct {
	store  *store.Store
	opts   runtime.Options
	disp   *runtime.Dispatcher
	health *health.Server
	grpc   *grpc.Server
}

// New creates a new gRPC server wrapping the given store. opts configures
// worksheet runs the same way the REST API does.
func New(s *store.Store, opts runtime.Options) *Server {
	srv := &Server{
		store:  s,
		opts:   opts,
		disp:   &runtime.Dispatcher{Cache: opts.Cache, Tracer: opts.Tracer},
		health: health.NewServer(),
	}

	gs := grpc.NewServer()
	gs.RegisterService(serviceDesc(), srv)
	healthpb.RegisterHealthServer(gs, srv.health)
	srv.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves gRPC requests on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// methodName maps an operation to its RPC name, e.g. "evaluate" -> "Evaluate".
func methodName(op worksheet.Op) string {
	name := string(op)
	return string(name[0]-'a'+'A') + name[1:]
}

func serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interface{})(nil),
		Metadata:    "algebra/v1/algebra.proto",
	}
	for _, op := range worksheet.Ops {
		op := op
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: methodName(op),
			Handler: unaryHandler(methodName(op), func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.apply(ctx, op, req)
			}),
		})
	}
	desc.Methods = append(desc.Methods,
		grpc.MethodDesc{MethodName: MethodRunWorksheet, Handler: unaryHandler(MethodRunWorksheet, (*Server).runWorksheet)},
		grpc.MethodDesc{MethodName: MethodListWorksheets, Handler: unaryHandler(MethodListWorksheets, (*Server).listWorksheets)},
	)
	return desc
}

type structMethod func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a Struct-in, Struct-out method to grpc.MethodDesc.
func unaryHandler(name string, fn structMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + name,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(s, ctx, req.(*structpb.Struct))
		})
	}
}

// --- Operations ---

func (s *Server) apply(ctx context.Context, op worksheet.Op, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	formula := fields["formula"].GetStringValue()

	var variable rune
	if name := fields["variable"].GetStringValue(); name != "" {
		v, err := worksheet.ParseVariableName(name)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		variable = v
	}

	named := make(map[string]float64)
	for name, v := range fields["bindings"].GetStructValue().GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "binding '%s' must be a number", name)
		}
		named[name] = n.NumberValue
	}
	bindings, err := worksheet.ParseBindings(named)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.disp.Apply(ctx, runtime.Request{Op: op, Formula: formula, Variable: variable, Bindings: bindings})
	if err != nil {
		return nil, pipelineStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"op":      string(op),
		"formula": formula,
		"result":  valueToMap(result),
	})
}

// --- Worksheets ---

// runWorksheet executes a worksheet synchronously. The request names a
// stored worksheet ("name") or carries its source inline ("source").
func (s *Server) runWorksheet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	source := fields["source"].GetStringValue()

	switch {
	case name != "" && source != "":
		return nil, status.Error(codes.InvalidArgument, "name and source are mutually exclusive")
	case name != "":
		ws, err := s.store.GetWorksheet(name)
		if err != nil {
			return nil, storeStatus(err)
		}
		source = ws.SourceCode
	case source == "":
		return nil, status.Error(codes.InvalidArgument, "name or source is required")
	}

	sheet, err := worksheet.Parse([]byte(source))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid worksheet definition: %v", err)
	}

	var run *store.Run
	if name != "" {
		if run, err = s.store.CreateRun(name); err != nil {
			return nil, storeStatus(err)
		}
	}

	report, err := runtime.NewEngine(sheet, s.opts).Execute(ctx)
	if err != nil {
		if run != nil {
			_ = s.store.FailRun(run.Name, report, err)
		}
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		if report == nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	} else if run != nil {
		_ = s.store.CompleteRun(run.Name, report)
	}

	out := reportToMap(report)
	if run != nil {
		out["run"] = run.Name
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return structpb.NewStruct(out)
}

func (s *Server) listWorksheets(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	worksheets := s.store.ListWorksheets()

	items := make([]interface{}, len(worksheets))
	for i, ws := range worksheets {
		items[i] = map[string]interface{}{
			"name":       ws.Name,
			"title":      ws.Title,
			"revisionId": ws.RevisionID,
			"stepCount":  ws.StepCount,
			"updateTime": ws.UpdateTime.Format(time.RFC3339),
		}
	}
	return structpb.NewStruct(map[string]interface{}{"worksheets": items})
}

// --- Helpers ---

// pipelineStatus maps a pipeline failure to a gRPC status carrying the
// error payload as a Struct detail.
func pipelineStatus(err error) error {
	var te *types.Error
	if !errors.As(err, &te) {
		var unknown *runtime.UnknownOpError
		if errors.As(err, &unknown) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return status.FromContextError(err).Err()
		}
		return status.Error(codes.Internal, err.Error())
	}

	code := codes.FailedPrecondition
	if st := te.Stage(); st == types.StageLex || st == types.StageParse {
		code = codes.InvalidArgument
	}
	st := status.New(code, te.Error())
	if detail, derr := structpb.NewStruct(te.ToMap()); derr == nil {
		if withDetail, werr := st.WithDetails(detail); werr == nil {
			st = withDetail
		}
	}
	return st.Err()
}

func storeStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func valueToMap(v types.Value) map[string]interface{} {
	m := map[string]interface{}{"type": v.Type().String()}
	if !v.IsNull() {
		m["value"] = v.ToGoValue()
	}
	return m
}

func reportToMap(report *runtime.Report) map[string]interface{} {
	steps := make([]interface{}, len(report.Steps))
	for i, step := range report.Steps {
		m := map[string]interface{}{
			"name":    step.Name,
			"op":      string(step.Op),
			"formula": step.Formula,
			"status":  string(step.Status),
			"result":  valueToMap(step.Value),
		}
		if step.Expect != "" {
			m["expect"] = step.Expect
		}
		if em := step.ErrorMap(); em != nil {
			m["error"] = em
		}
		steps[i] = m
	}
	return map[string]interface{}{
		"worksheet": report.Worksheet,
		"ok":        report.OK(),
		"succeeded": report.Count(runtime.StepSucceeded),
		"steps":     steps,
	}
}
