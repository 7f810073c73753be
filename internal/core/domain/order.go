package domain

import "time"

// Order is a successful purchase. At most one exists per (UserID, FlashSaleID).
type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	FlashSaleID string    `json:"flashSaleId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
