// Package grpcwire implements transport.Transport over a real network,
// using a bidi-streaming gRPC service whose wire envelope is a generic
// google.golang.org/protobuf/types/known/structpb.Struct rather than a
// bespoke generated message — the same codec-transparent, schema-free
// spirit as this author's grpc-proxy module, which forwards gRPC
// payloads without decoding them into per-service types. No protoc step
// is required: structpb is a pre-generated well-known type.
package grpcwire

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joeycumines/go-lwgrp/internal/transport"
)

const serviceName = "lwgrp.wire.ChainTransport"
const methodName = "Exchange"
const fullMethod = "/" + serviceName + "/" + methodName

var streamDesc = grpc.StreamDesc{
	StreamName:    methodName,
	ServerStreams: true,
	ClientStreams: true,
}

// Config supplies the addresses grpcwire needs to dial and serve. The
// engines start from the two neighbors in the chain and then exchange
// with ranks they learn round by round (pointer doubling in SplitBin,
// partner rotation in AlltoallvLinear), so Addresses must cover every
// rank this participant may talk to during a call; address discovery
// beyond that is out of spec.md's scope.
type Config struct {
	// ListenAddr is the address this participant's gRPC server binds to.
	ListenAddr string
	// Addresses maps a peer's transport.Rank to the address its server
	// listens on.
	Addresses map[transport.Rank]string
	// Dialer, if set, replaces the default TCP dialer used to reach
	// Addresses. Tests use this to dial an in-memory bufconn listener
	// instead of a real socket.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

type envelope struct {
	tag   int
	dtype transport.Datatype
	data  []byte
}

// Transport is a grpcwire-backed transport.Transport for one
// participant.
type Transport struct {
	rank transport.Rank
	cfg  Config

	server *grpc.Server
	lis    net.Listener

	mu      sync.Mutex
	inboxes map[transport.Rank]chan envelope
	clients map[transport.Rank]grpc.ClientStream
}

var _ transport.Transport = (*Transport)(nil)

// Listen starts this participant's gRPC server on cfg.ListenAddr (or, if
// lis is non-nil, on the given listener — used by tests to bind an
// in-memory bufconn listener instead of a real socket) and returns a
// ready-to-use Transport. Call Close when done.
func Listen(rank transport.Rank, cfg Config, lis net.Listener) (*Transport, error) {
	x := &Transport{
		rank:    rank,
		cfg:     cfg,
		inboxes: make(map[transport.Rank]chan envelope),
		clients: make(map[transport.Rank]grpc.ClientStream),
	}

	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("grpcwire: listen: %w", err)
		}
	}
	x.lis = lis

	x.server = grpc.NewServer()
	x.server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName: methodName,
				Handler: func(_ any, stream grpc.ServerStream) error {
					return x.serve(stream)
				},
				ServerStreams: true,
				ClientStreams: true,
			},
		},
	}, nil)

	go x.server.Serve(lis)

	return x, nil
}

// Close stops the server and tears down outgoing streams.
func (x *Transport) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, cs := range x.clients {
		_ = cs.CloseSend()
	}
	x.server.Stop()
}

// Rank returns this participant's own rank.
func (x *Transport) Rank() transport.Rank { return x.rank }

func (x *Transport) serve(stream grpc.ServerStream) error {
	for {
		st := new(structpb.Struct)
		if err := stream.RecvMsg(st); err != nil {
			return nil
		}
		env, from, err := decodeEnvelope(st)
		if err != nil {
			return err
		}
		x.inboxFor(from) <- env
	}
}

func (x *Transport) inboxFor(src transport.Rank) chan envelope {
	x.mu.Lock()
	defer x.mu.Unlock()
	ch, ok := x.inboxes[src]
	if !ok {
		ch = make(chan envelope, 16)
		x.inboxes[src] = ch
	}
	return ch
}

func (x *Transport) clientTo(dst transport.Rank) (grpc.ClientStream, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if cs, ok := x.clients[dst]; ok {
		return cs, nil
	}
	addr, ok := x.cfg.Addresses[dst]
	if !ok {
		return nil, fmt.Errorf("grpcwire: no address configured for rank %d", dst)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if x.cfg.Dialer != nil {
		opts = append(opts, grpc.WithContextDialer(x.cfg.Dialer))
		addr = "passthrough:///" + addr
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcwire: dial %s: %w", addr, err)
	}
	cs, err := conn.NewStream(context.Background(), &streamDesc, fullMethod)
	if err != nil {
		return nil, fmt.Errorf("grpcwire: open stream to %s: %w", addr, err)
	}
	x.clients[dst] = cs
	return cs, nil
}

// Isend encodes the requested segment into a structpb.Struct envelope
// and sends it on the (lazily opened) stream to dst. Sends to
// transport.None complete immediately as no-ops, per spec.md section 5.
func (x *Transport) Isend(dst transport.Rank, tag int, dtype transport.Datatype, buf any, offset, count int) (transport.Request, error) {
	if dst == transport.None {
		return struct{}{}, nil
	}
	raw, err := encodeSegment(dtype, buf, offset, count)
	if err != nil {
		return nil, err
	}
	st, err := encodeEnvelope(x.rank, tag, dtype, raw)
	if err != nil {
		return nil, err
	}
	cs, err := x.clientTo(dst)
	if err != nil {
		return nil, &transport.Error{Op: "isend", Err: err}
	}
	if err := cs.SendMsg(st); err != nil {
		return nil, &transport.Error{Op: "isend", Err: err}
	}
	return struct{}{}, nil
}

type recvRequest struct {
	ch     chan envelope
	tag    int
	dtype  transport.Datatype
	buf    any
	offset int
	count  int
}

// Irecv returns a request that WaitAll resolves by reading from the
// channel fed by the server-side handler for src. Receives from
// transport.None complete immediately as no-ops.
func (x *Transport) Irecv(src transport.Rank, tag int, dtype transport.Datatype, buf any, offset, count int) (transport.Request, error) {
	if src == transport.None {
		return recvRequest{}, nil
	}
	return recvRequest{
		ch:     x.inboxFor(src),
		tag:    tag,
		dtype:  dtype,
		buf:    buf,
		offset: offset,
		count:  count,
	}, nil
}

// WaitAll blocks until every receive request in reqs has been satisfied.
// Sends have already completed synchronously by the time Isend returns,
// so only recvRequest values do any waiting here.
func (x *Transport) WaitAll(reqs ...transport.Request) error {
	for _, r := range reqs {
		rr, ok := r.(recvRequest)
		if !ok || rr.ch == nil {
			continue
		}
		env := <-rr.ch
		if env.tag != rr.tag {
			return &transport.Error{Op: "waitall", Err: fmt.Errorf("grpcwire: tag mismatch: got %d want %d", env.tag, rr.tag)}
		}
		if err := decodeSegmentInto(rr.dtype, rr.buf, rr.offset, rr.count, env.data); err != nil {
			return &transport.Error{Op: "waitall", Err: err}
		}
	}
	return nil
}

func encodeEnvelope(from transport.Rank, tag int, dtype transport.Datatype, raw []byte) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"from":  float64(from),
		"tag":   float64(tag),
		"dtype": dtypeName(dtype),
		"data":  base64.StdEncoding.EncodeToString(raw),
	})
}

func decodeEnvelope(st *structpb.Struct) (envelope, transport.Rank, error) {
	fields := st.GetFields()
	from := transport.Rank(fields["from"].GetNumberValue())
	tag := int(fields["tag"].GetNumberValue())
	dtype, err := dtypeFromName(fields["dtype"].GetStringValue())
	if err != nil {
		return envelope{}, 0, err
	}
	raw, err := base64.StdEncoding.DecodeString(fields["data"].GetStringValue())
	if err != nil {
		return envelope{}, 0, fmt.Errorf("grpcwire: decode payload: %w", err)
	}
	return envelope{tag: tag, dtype: dtype, data: raw}, from, nil
}

func dtypeName(dtype transport.Datatype) string {
	switch dtype {
	case transport.Int32:
		return "int32"
	case transport.Byte:
		return "byte"
	default:
		return "unknown"
	}
}

func dtypeFromName(name string) (transport.Datatype, error) {
	switch name {
	case "int32":
		return transport.Int32, nil
	case "byte":
		return transport.Byte, nil
	default:
		return 0, fmt.Errorf("grpcwire: unknown datatype %q", name)
	}
}

func encodeSegment(dtype transport.Datatype, buf any, offset, count int) ([]byte, error) {
	switch dtype {
	case transport.Int32:
		s, ok := buf.([]int32)
		if !ok {
			return nil, fmt.Errorf("grpcwire: expected []int32 for Int32 datatype, got %T", buf)
		}
		raw := make([]byte, 4*count)
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint32(raw[4*i:], uint32(s[offset+i]))
		}
		return raw, nil
	case transport.Byte:
		s, ok := buf.([]byte)
		if !ok {
			return nil, fmt.Errorf("grpcwire: expected []byte for Byte datatype, got %T", buf)
		}
		raw := make([]byte, count)
		copy(raw, s[offset:offset+count])
		return raw, nil
	default:
		return nil, fmt.Errorf("grpcwire: unsupported datatype %v", dtype)
	}
}

func decodeSegmentInto(dtype transport.Datatype, buf any, offset, count int, raw []byte) error {
	switch dtype {
	case transport.Int32:
		s, ok := buf.([]int32)
		if !ok {
			return fmt.Errorf("grpcwire: expected []int32 for Int32 datatype, got %T", buf)
		}
		if len(raw) != 4*count {
			return fmt.Errorf("grpcwire: payload length mismatch: got %d want %d", len(raw), 4*count)
		}
		for i := 0; i < count; i++ {
			s[offset+i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return nil
	case transport.Byte:
		s, ok := buf.([]byte)
		if !ok {
			return fmt.Errorf("grpcwire: expected []byte for Byte datatype, got %T", buf)
		}
		if len(raw) != count {
			return fmt.Errorf("grpcwire: payload length mismatch: got %d want %d", len(raw), count)
		}
		copy(s[offset:offset+count], raw)
		return nil
	default:
		return fmt.Errorf("grpcwire: unsupported datatype %v", dtype)
	}
}
