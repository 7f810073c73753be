package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/timed-flash-sale/internal/adapter/handler/rpc"
	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/core/service"
)

type GRPCHandler struct {
	saleService  *service.SaleService
	orderService *service.OrderService
	logger       zerolog.Logger
}

var _ rpc.FlashSaleServer = (*GRPCHandler)(nil)

func NewGRPCHandler(saleService *service.SaleService, orderService *service.OrderService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		saleService:  saleService,
		orderService: orderService,
		logger:       logger.With().Str("component", "grpc").Logger(),
	}
}

func (h *GRPCHandler) CreateSale(ctx context.Context, req *rpc.CreateSaleRequest) (*rpc.CreateSaleResponse, error) {
	sale, err := h.saleService.CreateSale(ctx, req.StartTime, req.EndTime, req.TotalStock)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.CreateSaleResponse{FlashSale: sale}, nil
}

func (h *GRPCHandler) GetStatus(ctx context.Context, _ *rpc.GetStatusRequest) (*rpc.GetStatusResponse, error) {
	res, err := h.saleService.CurrentStatus(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if res.Status == domain.SaleStatusNone {
		return nil, status.Error(codes.NotFound, "no flash sales found")
	}
	return &rpc.GetStatusResponse{FlashSale: res.Sale, Status: res.Status}, nil
}

func (h *GRPCHandler) Purchase(ctx context.Context, req *rpc.PurchaseRequest) (*rpc.PurchaseResponse, error) {
	order, err := h.orderService.Purchase(ctx, req.FlashSaleID, req.UserID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.PurchaseResponse{Order: order}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *rpc.GetOrderRequest) (*rpc.GetOrderResponse, error) {
	order, err := h.orderService.GetOrder(ctx, req.UserID, req.FlashSaleID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.GetOrderResponse{Order: order}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.logger.Error().Err(err).Msg("rpc failed")
		return status.Error(codes.Internal, "internal error")
	}

	var de *domain.Error
	errors.As(err, &de)
	return status.Error(grpcCode(kind), de.Message)
}

func grpcCode(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindOverlap, domain.KindAlreadyPurchased:
		return codes.AlreadyExists
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindNotActive:
		return codes.FailedPrecondition
	case domain.KindOutOfStock:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}
