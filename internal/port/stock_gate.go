package port

import "context"

type GateResult int

const (
	// GateMiss means the gate holds no stock for the sale; the store decides.
	GateMiss GateResult = iota
	GateAdmitted
	GateSoldOut
	GateDuplicate
)

// StockGate is an advisory admission layer in front of the store. It rejects
// sold-out and repeat buyers cheaply; the store stays authoritative.
type StockGate interface {
	// Prime resets the sale's stock counter and buyer set
	Prime(ctx context.Context, saleID string, stock int) error

	// SyncStock sets the stock counter only if it is missing
	SyncStock(ctx context.Context, saleID string, stock int) error

	Admit(ctx context.Context, saleID, userID string) (GateResult, error)

	// Release returns the user's admission; repeated calls are no-ops
	Release(ctx context.Context, saleID, userID string) error
}
