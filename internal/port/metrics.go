package port

import "time"

type PurchaseMetrics interface {
	ObservePurchase(outcome string, elapsed time.Duration)
}
