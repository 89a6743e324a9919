package grpc_control

import (
	"context"

	"smartguard-relay/src/helpers"
	"smartguard-relay/src/interfaces"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Struct keys for thresholds, shared with the REST API.
const (
	keyWindSpeed  = "windSpeedThreshold"
	keyStability  = "stabilityThreshold"
	keyLoad       = "loadThreshold"
	keySwingSpeed = "swingSpeedThreshold"
)

// ControlService implements the RelayControlServer interface
type ControlService struct {
	UnimplementedRelayControlServer
	Thresholds interfaces.IThresholdStore
	Status     interfaces.IRelayStatus
	Logger     *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(thresholds interfaces.IThresholdStore, st interfaces.IRelayStatus, log *logger.Logger) *ControlService {
	return &ControlService{
		Thresholds: thresholds,
		Status:     st,
		Logger:     log,
	}
}

// NewServer returns a gRPC server with the control service registered.
func NewServer(svc *ControlService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(svc.logCalls))
	s := grpc.NewServer(opts...)
	RegisterRelayControlServer(s, svc)
	return s
}

// -----------------------------------------------------------------------------

func (s *ControlService) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.Logger.Warning("gRPC: %s failed: %v", info.FullMethod, err)
	} else {
		s.Logger.Debug("gRPC: %s ok", info.FullMethod)
	}
	return resp, err
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetThresholds(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	return thresholdsToStruct(s.Thresholds.Thresholds())
}

// -----------------------------------------------------------------------------

func (s *ControlService) UpdateThresholds(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	update, err := updateFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	applied, err := s.Thresholds.UpdateThresholds(update)
	if err != nil {
		if helpers.IsConfigurationError(err) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.Logger.Info("gRPC: Thresholds updated: %+v", applied)
	return thresholdsToStruct(applied)
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	h := s.Status.Health()
	fields := map[string]interface{}{
		"status":            h.Status,
		"sessions":          h.Sessions,
		"lastSequence":      float64(h.LastSequence),
		"upstreamConnected": h.Upstream.Connected,
		"reconnects":        float64(h.Upstream.Reconnects),
		"lastError":         h.Upstream.LastError,
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Conversion helpers
// -----------------------------------------------------------------------------

func thresholdsToStruct(t models.MThresholds) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]interface{}{
		keyWindSpeed:  t.WindSpeed,
		keyStability:  t.Stability,
		keyLoad:       t.Load,
		keySwingSpeed: t.SwingSpeed,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func updateFromStruct(in *structpb.Struct) (models.MThresholdsUpdate, error) {
	var u models.MThresholdsUpdate
	if in == nil || len(in.GetFields()) == 0 {
		return u, helpers.NewConfigurationError("threshold update names no thresholds")
	}

	for key, v := range in.GetFields() {
		num, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return u, helpers.NewConfigurationError("threshold %q must be a number", key)
		}
		value := num.NumberValue

		switch key {
		case keyWindSpeed:
			u.WindSpeed = &value
		case keyStability:
			u.Stability = &value
		case keyLoad:
			u.Load = &value
		case keySwingSpeed:
			u.SwingSpeed = &value
		default:
			return u, helpers.NewConfigurationError("unknown threshold %q", key)
		}
	}
	return u, nil
}
