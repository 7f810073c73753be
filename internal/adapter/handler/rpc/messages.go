package rpc

import (
	"time"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
)

type CreateSaleRequest struct {
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	TotalStock int       `json:"totalStock"`
}

type CreateSaleResponse struct {
	FlashSale *domain.FlashSale `json:"flashSale"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	FlashSale *domain.FlashSale `json:"flashSale"`
	Status    domain.SaleStatus `json:"status"`
}

type PurchaseRequest struct {
	FlashSaleID string `json:"flashSaleId"`
	UserID      string `json:"userId"`
}

type PurchaseResponse struct {
	Order *domain.Order `json:"order"`
}

type GetOrderRequest struct {
	FlashSaleID string `json:"flashSaleId"`
	UserID      string `json:"userId"`
}

type GetOrderResponse struct {
	Order *domain.Order `json:"order"`
}
