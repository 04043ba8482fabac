package grpcserver

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "whitelist.v1.WhitelistService"

	methodCheckWhitelist = "CheckWhitelist"
	methodListWhitelist  = "ListWhitelist"
	methodCleanupExpired = "CleanupExpired"
	methodStats          = "Stats"

	fieldUID              = "uid"
	fieldRegion           = "region"
	fieldWhitelisted      = "whitelisted"
	fieldExpiresAtUnixUTC = "expires_at_unix_utc"
	fieldRemainingSeconds = "remaining_seconds"
	fieldStatus           = "status"
	fieldEntries          = "entries"
	fieldRemoved          = "removed"

	errorInvalidRegion     = "invalid_region"
	errorInvalidUID        = "invalid_uid"
	errorInvalidRequest    = "invalid_request"
	errorNotFound          = "not_found"
	errorInsufficientFunds = "insufficient_funds"
	errorPartialSuccess    = "partial_success"
	errorStorage           = "storage_error"
)

// Service is the whitelist surface exposed over gRPC.
type Service interface {
	CheckWhitelist(ctx context.Context, uid whitelist.UID, region whitelist.Region) (whitelist.CheckResult, error)
	ListWhitelist(ctx context.Context, region whitelist.Region) ([]whitelist.EntryView, error)
	CleanupExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (whitelist.Stats, error)
}

// WhitelistServiceServer is the server API for whitelist.v1.WhitelistService.
// Messages are google.protobuf.Struct documents.
type WhitelistServiceServer interface {
	CheckWhitelist(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	ListWhitelist(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	CleanupExpired(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	Stats(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
}

// WhitelistServiceDesc describes whitelist.v1.WhitelistService for grpc.Server.
var WhitelistServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WhitelistServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodCheckWhitelist, Handler: unaryHandler(methodCheckWhitelist, WhitelistServiceServer.CheckWhitelist)},
		{MethodName: methodListWhitelist, Handler: unaryHandler(methodListWhitelist, WhitelistServiceServer.ListWhitelist)},
		{MethodName: methodCleanupExpired, Handler: unaryHandler(methodCleanupExpired, WhitelistServiceServer.CleanupExpired)},
		{MethodName: methodStats, Handler: unaryHandler(methodStats, WhitelistServiceServer.Stats)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterWhitelistServiceServer registers server on registrar.
func RegisterWhitelistServiceServer(registrar grpc.ServiceRegistrar, server WhitelistServiceServer) {
	registrar.RegisterService(&WhitelistServiceDesc, server)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(method string, call func(WhitelistServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(structpb.Struct)
		if err := decode(request); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(server.(WhitelistServiceServer), ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, request any) (any, error) {
			return call(server.(WhitelistServiceServer), ctx, request.(*structpb.Struct))
		}
		return interceptor(ctx, request, info, handler)
	}
}

// Server exposes the whitelist service over gRPC.
type Server struct {
	service Service
}

// NewServer constructs a gRPC server for the whitelist service.
func NewServer(service Service) *Server {
	return &Server{service: service}
}

func (server *Server) CheckWhitelist(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	uid, err := whitelist.NewUID(stringField(request, fieldUID))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	region, err := whitelist.ParseOptionalRegion(stringField(request, fieldRegion))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, operationError := server.service.CheckWhitelist(ctx, uid, region)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	fields := map[string]any{fieldWhitelisted: result.Whitelisted}
	if result.Whitelisted {
		fields[fieldRegion] = result.Region.String()
		fields[fieldExpiresAtUnixUTC] = result.ExpiresAtUnixUTC
		fields[fieldRemainingSeconds] = result.RemainingSeconds
	}
	return newStruct(fields)
}

func (server *Server) ListWhitelist(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	region, err := whitelist.ParseOptionalRegion(stringField(request, fieldRegion))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	views, operationError := server.service.ListWhitelist(ctx, region)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	entries := make([]any, 0, len(views))
	for _, view := range views {
		entries = append(entries, map[string]any{
			fieldUID:              view.UID.String(),
			fieldRegion:           view.Region.String(),
			fieldExpiresAtUnixUTC: view.ExpiresAtUnixUTC,
			fieldStatus:           string(view.Status),
			fieldRemainingSeconds: view.RemainingSeconds,
		})
	}
	return newStruct(map[string]any{fieldEntries: entries})
}

func (server *Server) CleanupExpired(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	removed, operationError := server.service.CleanupExpired(ctx)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return newStruct(map[string]any{fieldRemoved: removed})
}

func (server *Server) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, operationError := server.service.Stats(ctx)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return newStruct(map[string]any{
		"total_whitelisted":   stats.TotalWhitelisted,
		"active_whitelisted":  stats.ActiveWhitelisted,
		"expired_whitelisted": stats.ExpiredWhitelisted,
		"total_users":         stats.TotalUsers,
		"total_coins":         stats.TotalCoins,
	})
}

func stringField(request *structpb.Struct, name string) string {
	return request.GetFields()[name].GetStringValue()
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	response, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return response, nil
}

func mapToGRPCError(source error) error {
	if errors.Is(source, whitelist.ErrPartialSuccess) {
		return status.Error(codes.Internal, errorPartialSuccess)
	}
	if errors.Is(source, whitelist.ErrInvalidRegion) {
		return status.Error(codes.InvalidArgument, errorInvalidRegion)
	}
	if errors.Is(source, whitelist.ErrInvalidUID) {
		return status.Error(codes.InvalidArgument, errorInvalidUID)
	}
	if errors.Is(source, whitelist.ErrValidation) {
		return status.Error(codes.InvalidArgument, errorInvalidRequest)
	}
	if errors.Is(source, whitelist.ErrNotFound) {
		return status.Error(codes.NotFound, errorNotFound)
	}
	if errors.Is(source, whitelist.ErrInsufficientFunds) {
		return status.Error(codes.FailedPrecondition, errorInsufficientFunds)
	}
	return status.Error(codes.Internal, errorStorage)
}
