package grpc

import (
	"context"
	"encoding/base64"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/powerauth-server/internal/application"
)

// SignatureInternalService exposes the hot-path signature check to other mesh services as
// an internal RPC, so a gateway or resource service doesn't have to speak the external §6
// JSON envelope contract for every request on the critical path.
type SignatureInternalService interface {
	VerifySignature(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetActivationStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type SignatureInternalServer struct {
	service *application.Service
}

func NewSignatureInternalServer(service *application.Service) *SignatureInternalServer {
	return &SignatureInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc SignatureInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "viralforge.powerauth.v3.SignatureInternalService",
		HandlerType: (*SignatureInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "VerifySignature",
				Handler:    verifySignatureHandler(svc),
			},
			{
				MethodName: "GetActivationStatus",
				Handler:    getActivationStatusHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/powerauth/v3/signature_internal.proto",
	}, svc)
}

func (s *SignatureInternalServer) VerifySignature(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	activationID := req.GetFields()["activation_id"].GetStringValue()
	if activationID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing activation_id")
	}
	appKey, err := base64.StdEncoding.DecodeString(req.GetFields()["application_key"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid application_key")
	}

	result, err := s.service.VerifySignature(ctx, application.SignatureVerifyRequest{
		ActivationID:   activationID,
		ApplicationKey: appKey,
		Data:           []byte(req.GetFields()["data"].GetStringValue()),
		Signature:      req.GetFields()["signature"].GetStringValue(),
		SignatureType:  req.GetFields()["signature_type"].GetStringValue(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":           result.Valid,
		"activation_id":   result.ActivationID,
		"remaining_tries": float64(result.RemainingTries),
		"blocked":         result.Blocked,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *SignatureInternalServer) GetActivationStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	activationID := req.GetFields()["activation_id"].GetStringValue()
	if activationID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing activation_id")
	}

	rec, err := s.service.GetActivationStatus(ctx, activationID)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	resp, err := structpb.NewStruct(map[string]any{
		"activation_id":     rec.ActivationID,
		"activation_status": string(rec.Status),
		"failed_attempts":   float64(rec.FailedAttempts),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func verifySignatureHandler(svc SignatureInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.VerifySignature(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.powerauth.v3.SignatureInternalService/VerifySignature",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.VerifySignature(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getActivationStatusHandler(svc SignatureInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetActivationStatus(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.powerauth.v3.SignatureInternalService/GetActivationStatus",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetActivationStatus(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
