package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Response is the raw outcome of one successful attempt
type Response struct {
	Payload []byte
	Header  metadata.MD
	Trailer metadata.MD
}

// Issuer sends one unary attempt over conn. On failure the returned error
// carries the gRPC status; the Response, if non-nil, still holds whatever
// header and trailer metadata arrived.
type Issuer interface {
	Issue(ctx context.Context, conn grpc.ClientConnInterface, method string, payload []byte, md metadata.MD) (*Response, error)
}

// StreamIssuer opens a server-streaming call and sends its single request
type StreamIssuer interface {
	OpenStream(ctx context.Context, conn grpc.ClientConnInterface, method string, payload []byte, md metadata.MD) (grpc.ClientStream, error)
}

// GRPCIssuer issues calls with the frame codec
type GRPCIssuer struct{}

var (
	_ Issuer       = GRPCIssuer{}
	_ StreamIssuer = GRPCIssuer{}
)

// Issue implements Issuer
func (GRPCIssuer) Issue(ctx context.Context, conn grpc.ClientConnInterface, method string, payload []byte, md metadata.MD) (*Response, error) {
	ctx = metadata.NewOutgoingContext(ctx, md)

	var header, trailer metadata.MD
	out := &Frame{}
	err := conn.Invoke(ctx, method, &Frame{Payload: payload}, out,
		grpc.ForceCodec(Codec),
		grpc.Header(&header),
		grpc.Trailer(&trailer),
	)
	resp := &Response{Header: header, Trailer: trailer}
	if err != nil {
		return resp, err
	}
	resp.Payload = out.Payload
	return resp, nil
}

var serverStreamDesc = &grpc.StreamDesc{ServerStreams: true}

// OpenStream implements StreamIssuer
func (GRPCIssuer) OpenStream(ctx context.Context, conn grpc.ClientConnInterface, method string, payload []byte, md metadata.MD) (grpc.ClientStream, error) {
	ctx = metadata.NewOutgoingContext(ctx, md)

	cs, err := conn.NewStream(ctx, serverStreamDesc, method, grpc.ForceCodec(Codec))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(&Frame{Payload: payload}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}
