package display

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the Publisher registers. Messages are
// google.protobuf.Struct both ways.
const ServiceName = "tofview.display.v1.Display"

const watchMethod = "/" + ServiceName + "/Watch"

// DisplayServer streams surface events to one viewer per call.
type DisplayServer interface {
	Watch(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DisplayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "tofview/display/v1/display.proto",
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(DisplayServer).Watch(req, stream)
}

// RegisterDisplayServer registers srv on s.
func RegisterDisplayServer(s grpc.ServiceRegistrar, srv DisplayServer) {
	s.RegisterService(&serviceDesc, srv)
}

// WatchRequest selects what a viewer receives.
type WatchRequest struct {
	// IncludePNG attaches the encoded view to frame and blank events.
	IncludePNG bool
}

func (r WatchRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"include_png": r.IncludePNG})
}

func watchRequestFromStruct(s *structpb.Struct) WatchRequest {
	var r WatchRequest
	if v, ok := s.GetFields()["include_png"]; ok {
		r.IncludePNG = v.GetBoolValue()
	}
	return r
}

// WatchMessage is one decoded message of a Watch stream.
type WatchMessage struct {
	Event
	PNG []byte
}

func eventToStruct(ev Event, png []byte) (*structpb.Struct, error) {
	fields := map[string]any{
		"kind":       string(ev.Kind),
		"seq":        float64(ev.Seq),
		"status":     ev.Status,
		"range_text": ev.RangeText,
		"min_range":  float64(ev.MinRange),
		"max_range":  float64(ev.MaxRange),
		"policy":     ev.Policy,
		"time":       ev.Time.UTC().Format(time.RFC3339Nano),
	}
	if png != nil {
		fields["png"] = base64.StdEncoding.EncodeToString(png)
	}
	return structpb.NewStruct(fields)
}

// DecodeWatchMessage converts a stream message back into an Event.
func DecodeWatchMessage(s *structpb.Struct) (WatchMessage, error) {
	f := s.GetFields()
	var m WatchMessage
	m.Kind = EventKind(f["kind"].GetStringValue())
	if m.Kind == "" {
		return m, errors.New("watch message has no kind")
	}
	m.Seq = uint64(f["seq"].GetNumberValue())
	m.Status = f["status"].GetStringValue()
	m.RangeText = f["range_text"].GetStringValue()
	m.MinRange = uint16(f["min_range"].GetNumberValue())
	m.MaxRange = uint16(f["max_range"].GetNumberValue())
	m.Policy = f["policy"].GetStringValue()
	if ts := f["time"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return m, fmt.Errorf("watch message time: %w", err)
		}
		m.Time = t
	}
	if enc := f["png"].GetStringValue(); enc != "" {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return m, fmt.Errorf("watch message png: %w", err)
		}
		m.PNG = b
	}
	return m, nil
}

// Watch opens a Watch stream on conn and calls fn for every message until
// the stream ends, ctx is cancelled or fn returns an error. A clean end of
// stream returns nil.
func Watch(ctx context.Context, conn grpc.ClientConnInterface, req WatchRequest, fn func(WatchMessage) error) error {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], watchMethod)
	if err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}
	in, err := req.toStruct()
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close watch send: %w", err)
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		m, err := DecodeWatchMessage(msg)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
}
