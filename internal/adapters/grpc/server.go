package grpc

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/application"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CartService is the part of the application the cart RPCs call into.
type CartService interface {
	ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error)
	ChangeQuantity(ctx context.Context, actor ports.AuthClaims, storeID string, change domain.QuantityChange) (application.CartChangeResult, error)
	RevertChange(ctx context.Context, actor ports.AuthClaims, changeID string) (application.CartChangeResult, error)
}

// cartServiceServer is the handler type of the hand-written service
// descriptor below.
type cartServiceServer interface {
	ChangeQuantity(ctx context.Context, req *ChangeQuantityRequest) (*CartLineReply, error)
	RevertChange(ctx context.Context, req *RevertChangeRequest) (*CartLineReply, error)
}

var cartServiceDesc = grpc.ServiceDesc{
	ServiceName: cartServiceName,
	HandlerType: (*cartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ChangeQuantity", Handler: changeQuantityHandler},
		{MethodName: "RevertChange", Handler: revertChangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "retail/ordering/v1/cart.json",
}

func changeQuantityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChangeQuantityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(cartServiceServer).ChangeQuantity(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: changeQuantityMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(cartServiceServer).ChangeQuantity(ctx, req.(*ChangeQuantityRequest))
	})
}

func revertChangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RevertChangeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(cartServiceServer).RevertChange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: revertChangeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(cartServiceServer).RevertChange(ctx, req.(*RevertChangeRequest))
	})
}

type CartServer struct {
	service CartService
}

func NewCartServer(service CartService) *CartServer {
	return &CartServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc *CartServer) {
	server.RegisterService(&cartServiceDesc, svc)
}

func (s *CartServer) ChangeQuantity(ctx context.Context, req *ChangeQuantityRequest) (*CartLineReply, error) {
	actor, err := s.authenticate(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	result, err := s.service.ChangeQuantity(ctx, actor, req.StoreID, domain.QuantityChange{
		ChangeID:  req.ChangeID,
		ProductID: req.ProductID,
		Delta:     req.Delta,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toReply(result), nil
}

func (s *CartServer) RevertChange(ctx context.Context, req *RevertChangeRequest) (*CartLineReply, error) {
	actor, err := s.authenticate(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	result, err := s.service.RevertChange(ctx, actor, req.ChangeID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReply(result), nil
}

func (s *CartServer) authenticate(ctx context.Context) (ports.AuthClaims, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	if values := md.Get("authorization"); len(values) > 0 {
		token = strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
	}
	return s.service.ValidateToken(ctx, token)
}

func toReply(result application.CartChangeResult) *CartLineReply {
	return &CartLineReply{
		ChangeID:       result.ChangeID,
		StoreID:        result.StoreID,
		ProductID:      result.ProductID,
		Quantity:       result.Quantity,
		AvailablePacks: result.AvailablePacks,
		Replayed:       result.Replayed,
		Reverted:       result.Reverted,
	}
}

// NewServer builds a gRPC server with the cart service and the standard
// health service registered.
func NewServer(service CartService, logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(recoverInterceptor(logger), loggingInterceptor(logger)))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	Register(server, NewCartServer(service))
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(cartServiceName, healthpb.HealthCheckResponse_SERVING)
	return server, healthSrv
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		outcome := "success"
		switch {
		case code == codes.Internal || code == codes.Unavailable:
			level, outcome = slog.LevelError, "failure"
		case err != nil:
			level, outcome = slog.LevelWarn, "rejected"
		}
		logger.Log(ctx, level, "grpc request",
			"module", "grpc.server",
			"layer", "adapter",
			"operation", info.FullMethod,
			"outcome", outcome,
			"code", code.String(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return resp, err
	}
}

func recoverInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "grpc handler panicked",
					"module", "grpc.server",
					"layer", "adapter",
					"operation", info.FullMethod,
					"outcome", "failure",
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
