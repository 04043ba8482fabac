package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls whitelist.v1.WhitelistService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (client *Client) CheckWhitelist(ctx context.Context, request *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodCheckWhitelist, request, opts...)
}

func (client *Client) ListWhitelist(ctx context.Context, request *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodListWhitelist, request, opts...)
}

func (client *Client) CleanupExpired(ctx context.Context, request *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodCleanupExpired, request, opts...)
}

func (client *Client) Stats(ctx context.Context, request *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodStats, request, opts...)
}

func (client *Client) invoke(ctx context.Context, method string, request *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if request == nil {
		request = &structpb.Struct{}
	}
	response := new(structpb.Struct)
	if err := client.conn.Invoke(ctx, fullMethod(method), request, response, opts...); err != nil {
		return nil, err
	}
	return response, nil
}
