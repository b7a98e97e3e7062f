package rpc

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/models"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gophchat.RecordStore"

// Method names, also used as the suffix of full method paths.
const (
	MethodPutUserKeyMaterial     = "PutUserKeyMaterial"
	MethodGetUserKeyMaterial     = "GetUserKeyMaterial"
	MethodPutWrappedChannelKey   = "PutWrappedChannelKey"
	MethodGetWrappedChannelKey   = "GetWrappedChannelKey"
	MethodListWrappedChannelKeys = "ListWrappedChannelKeys"
	MethodListChannelMembers     = "ListChannelMembers"
	MethodAppendMessage          = "AppendMessage"
	MethodListMessages           = "ListMessages"
	MethodListMessagesBefore     = "ListMessagesBefore"
	MethodPutChannel             = "PutChannel"
	MethodGetChannel             = "GetChannel"
	MethodListChannels           = "ListChannels"
)

// FullMethod returns "/gophchat.RecordStore/<name>".
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// RecordStoreServer is implemented by the server.
type RecordStoreServer interface {
	PutUserKeyMaterial(context.Context, *PutUserKeyMaterialRequest) (*Empty, error)
	GetUserKeyMaterial(context.Context, *UserRequest) (*models.UserKeyMaterial, error)
	PutWrappedChannelKey(context.Context, *PutWrappedKeyRequest) (*Empty, error)
	GetWrappedChannelKey(context.Context, *SlotRequest) (*models.WrappedChannelKey, error)
	ListWrappedChannelKeys(context.Context, *SlotRequest) (*WrappedKeyList, error)
	ListChannelMembers(context.Context, *ChannelRequest) (*StringList, error)
	AppendMessage(context.Context, *models.EncryptedMessage) (*Empty, error)
	ListMessages(context.Context, *ChannelRequest) (*MessageList, error)
	ListMessagesBefore(context.Context, *PageRequest) (*MessageList, error)
	PutChannel(context.Context, *models.Channel) (*Empty, error)
	GetChannel(context.Context, *ChannelRequest) (*models.Channel, error)
	ListChannels(context.Context, *UserRequest) (*ChannelList, error)
}

// unary builds a MethodDesc that decodes Req and dispatches through the
// interceptor chain.
func unary[Req any, PReq interface {
	*Req
	Message
}, Resp any](name string, call func(RecordStoreServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RecordStoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RecordStoreServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes gophchat.RecordStore.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPutUserKeyMaterial, RecordStoreServer.PutUserKeyMaterial),
		unary(MethodGetUserKeyMaterial, RecordStoreServer.GetUserKeyMaterial),
		unary(MethodPutWrappedChannelKey, RecordStoreServer.PutWrappedChannelKey),
		unary(MethodGetWrappedChannelKey, RecordStoreServer.GetWrappedChannelKey),
		unary(MethodListWrappedChannelKeys, RecordStoreServer.ListWrappedChannelKeys),
		unary(MethodListChannelMembers, RecordStoreServer.ListChannelMembers),
		unary(MethodAppendMessage, RecordStoreServer.AppendMessage),
		unary(MethodListMessages, RecordStoreServer.ListMessages),
		unary(MethodListMessagesBefore, RecordStoreServer.ListMessagesBefore),
		unary(MethodPutChannel, RecordStoreServer.PutChannel),
		unary(MethodGetChannel, RecordStoreServer.GetChannel),
		unary(MethodListChannels, RecordStoreServer.ListChannels),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophchat/recordstore",
}

// RegisterRecordStoreServer attaches srv to s.
func RegisterRecordStoreServer(s grpc.ServiceRegistrar, srv RecordStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// RecordStoreClient is the client stub.
type RecordStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewRecordStoreClient(cc grpc.ClientConnInterface) *RecordStoreClient {
	return &RecordStoreClient{cc: cc}
}

func invoke[Resp any, PResp interface {
	*Resp
	Message
}](ctx context.Context, c *RecordStoreClient, name string, in Message, opts ...grpc.CallOption) (PResp, error) {
	out := PResp(new(Resp))
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordStoreClient) PutUserKeyMaterial(ctx context.Context, in *PutUserKeyMaterialRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, MethodPutUserKeyMaterial, in, opts...)
}

func (c *RecordStoreClient) GetUserKeyMaterial(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*models.UserKeyMaterial, error) {
	return invoke[models.UserKeyMaterial](ctx, c, MethodGetUserKeyMaterial, in, opts...)
}

func (c *RecordStoreClient) PutWrappedChannelKey(ctx context.Context, in *PutWrappedKeyRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, MethodPutWrappedChannelKey, in, opts...)
}

func (c *RecordStoreClient) GetWrappedChannelKey(ctx context.Context, in *SlotRequest, opts ...grpc.CallOption) (*models.WrappedChannelKey, error) {
	return invoke[models.WrappedChannelKey](ctx, c, MethodGetWrappedChannelKey, in, opts...)
}

func (c *RecordStoreClient) ListWrappedChannelKeys(ctx context.Context, in *SlotRequest, opts ...grpc.CallOption) (*WrappedKeyList, error) {
	return invoke[WrappedKeyList](ctx, c, MethodListWrappedChannelKeys, in, opts...)
}

func (c *RecordStoreClient) ListChannelMembers(ctx context.Context, in *ChannelRequest, opts ...grpc.CallOption) (*StringList, error) {
	return invoke[StringList](ctx, c, MethodListChannelMembers, in, opts...)
}

func (c *RecordStoreClient) AppendMessage(ctx context.Context, in *models.EncryptedMessage, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, MethodAppendMessage, in, opts...)
}

func (c *RecordStoreClient) ListMessages(ctx context.Context, in *ChannelRequest, opts ...grpc.CallOption) (*MessageList, error) {
	return invoke[MessageList](ctx, c, MethodListMessages, in, opts...)
}

func (c *RecordStoreClient) ListMessagesBefore(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (*MessageList, error) {
	return invoke[MessageList](ctx, c, MethodListMessagesBefore, in, opts...)
}

func (c *RecordStoreClient) PutChannel(ctx context.Context, in *models.Channel, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, MethodPutChannel, in, opts...)
}

func (c *RecordStoreClient) GetChannel(ctx context.Context, in *ChannelRequest, opts ...grpc.CallOption) (*models.Channel, error) {
	return invoke[models.Channel](ctx, c, MethodGetChannel, in, opts...)
}

func (c *RecordStoreClient) ListChannels(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*ChannelList, error) {
	return invoke[ChannelList](ctx, c, MethodListChannels, in, opts...)
}
