package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"
	"turnero/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "turnero.availability.v1.Availability"
	methodGetSlots          = "/" + availabilityServiceName + "/GetSlots"
	methodListResources     = "/" + availabilityServiceName + "/ListResources"
)

// AvailabilityServer is the partner-facing read API. Requests and responses
// are google.protobuf.Struct messages.
type AvailabilityServer interface {
	GetSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type availabilityGRPC struct {
	calendar     *service.CalendarService
	availability *service.AvailabilityService
}

func NewAvailabilityServer(calendar *service.CalendarService, availability *service.AvailabilityService) AvailabilityServer {
	return &availabilityGRPC{calendar: calendar, availability: availability}
}

// GetSlots expects business_id, resource_id, date (YYYY-MM-DD) and an
// optional service_id.
func (s *availabilityGRPC) GetSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	businessID := int64(fields["business_id"].GetNumberValue())
	resourceID := int64(fields["resource_id"].GetNumberValue())
	if businessID <= 0 || resourceID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "business_id and resource_id are required")
	}

	b, err := s.calendar.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, grpcError(err)
	}
	date, err := models.ParseDate(fields["date"].GetStringValue(), b.Location())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	day, err := s.availability.DaySlots(ctx, businessID, resourceID, date, int64(fields["service_id"].GetNumberValue()))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(day)
}

// ListResources expects business_id and returns the active resources.
func (s *availabilityGRPC) ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	businessID := int64(req.GetFields()["business_id"].GetNumberValue())
	if businessID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "business_id is required")
	}

	resources, err := s.calendar.ListResources(ctx, businessID)
	if err != nil {
		return nil, grpcError(err)
	}
	active := make([]*models.Resource, 0, len(resources))
	for _, r := range resources {
		if r.Active {
			active = append(active, r)
		}
	}
	return toStruct(map[string]interface{}{"resources": active, "generated_at": time.Now().UTC()})
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, domain.UserMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrSlotTaken), errors.Is(err, domain.ErrRuleConflict):
		return status.Error(codes.FailedPrecondition, domain.UserMessage(err))
	default:
		return status.Error(codes.Internal, domain.MessageRetry)
	}
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSlots", Handler: unaryHandler(methodGetSlots, AvailabilityServer.GetSlots)},
		{MethodName: "ListResources", Handler: unaryHandler(methodListResources, AvailabilityServer.ListResources)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "turnero/availability/v1/availability.proto",
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

type structMethod func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

