package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "flashsale.v1.FlashSaleService"

type FlashSaleServer interface {
	CreateSale(context.Context, *CreateSaleRequest) (*CreateSaleResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	Purchase(context.Context, *PurchaseRequest) (*PurchaseResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
}

var FlashSaleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FlashSaleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSale", Handler: unaryHandler("CreateSale", FlashSaleServer.CreateSale)},
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", FlashSaleServer.GetStatus)},
		{MethodName: "Purchase", Handler: unaryHandler("Purchase", FlashSaleServer.Purchase)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", FlashSaleServer.GetOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flashsale/v1/flashsale.proto",
}

func RegisterFlashSaleServer(s grpc.ServiceRegistrar, srv FlashSaleServer) {
	s.RegisterService(&FlashSaleServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(FlashSaleServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FlashSaleServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FlashSaleServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type FlashSaleClient struct {
	cc grpc.ClientConnInterface
}

func NewFlashSaleClient(cc grpc.ClientConnInterface) *FlashSaleClient {
	return &FlashSaleClient{cc: cc}
}

func (c *FlashSaleClient) CreateSale(ctx context.Context, in *CreateSaleRequest, opts ...grpc.CallOption) (*CreateSaleResponse, error) {
	out := new(CreateSaleResponse)
	if err := c.invoke(ctx, "CreateSale", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FlashSaleClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	out := new(GetStatusResponse)
	if err := c.invoke(ctx, "GetStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FlashSaleClient) Purchase(ctx context.Context, in *PurchaseRequest, opts ...grpc.CallOption) (*PurchaseResponse, error) {
	out := new(PurchaseResponse)
	if err := c.invoke(ctx, "Purchase", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FlashSaleClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.invoke(ctx, "GetOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FlashSaleClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}
