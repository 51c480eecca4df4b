package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"matchbook/infra/codec"
)

const serviceName = "matchbook.v1.Matchbook"

const (
	submitMethod = "/" + serviceName + "/Submit"
	matchMethod  = "/" + serviceName + "/Match"
	depthMethod  = "/" + serviceName + "/Depth"
	statsMethod  = "/" + serviceName + "/Stats"
)

// MatchbookServer is the server side of the Matchbook service.
type MatchbookServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Match(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Depth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterMatchbookServer(s grpc.ServiceRegistrar, srv MatchbookServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(MatchbookServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchbookServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchbookServer), ctx, req.(*structpb.Struct))
		})
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MatchbookServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: handler(submitMethod, MatchbookServer.Submit)},
		{MethodName: "Match", Handler: handler(matchMethod, MatchbookServer.Match)},
		{MethodName: "Depth", Handler: handler(depthMethod, MatchbookServer.Depth)},
		{MethodName: "Stats", Handler: handler(statsMethod, MatchbookServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchbook/v1/matchbook.proto",
}

// -------------------- Client --------------------

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest, opts ...grpc.CallOption) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.invoke(ctx, submitMethod, req, &out, opts...)
	return out, err
}

func (c *Client) Match(ctx context.Context, req MatchRequest, opts ...grpc.CallOption) (MatchResponse, error) {
	var out MatchResponse
	err := c.invoke(ctx, matchMethod, req, &out, opts...)
	return out, err
}

func (c *Client) Depth(ctx context.Context, req DepthRequest, opts ...grpc.CallOption) (DepthResponse, error) {
	var out DepthResponse
	err := c.invoke(ctx, depthMethod, req, &out, opts...)
	return out, err
}

func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (StatsResponse, error) {
	var out StatsResponse
	err := c.invoke(ctx, statsMethod, StatsRequest{}, &out, opts...)
	return out, err
}

func (c *Client) invoke(ctx context.Context, method string, req, out any, opts ...grpc.CallOption) error {
	in, err := codec.ToStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, resp, opts...); err != nil {
		return err
	}
	return codec.FromStruct(resp, out)
}
