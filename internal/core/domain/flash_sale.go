package domain

import "time"

type SaleStatus string

const (
	SaleStatusNone     SaleStatus = "none"
	SaleStatusUpcoming SaleStatus = "upcoming"
	SaleStatusActive   SaleStatus = "active"
	SaleStatusEnded    SaleStatus = "ended"
)

type FlashSale struct {
	ID             string    `json:"id"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	TotalStock     int       `json:"totalStock"`
	RemainingStock int       `json:"remainingStock"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// InWindow reports whether now falls inside [StartTime, EndTime].
func (s FlashSale) InWindow(now time.Time) bool {
	return !now.Before(s.StartTime) && !now.After(s.EndTime)
}

// IsActive reports whether the sale accepts purchases at now.
// Exhausted stock ends a sale early even inside its window.
func (s FlashSale) IsActive(now time.Time) bool {
	return s.InWindow(now) && s.RemainingStock > 0
}

func (s FlashSale) StatusAt(now time.Time) SaleStatus {
	switch {
	case now.Before(s.StartTime):
		return SaleStatusUpcoming
	case s.IsActive(now):
		return SaleStatusActive
	default:
		return SaleStatusEnded
	}
}

// Overlaps uses inclusive bounds: touching windows overlap.
func (s FlashSale) Overlaps(start, end time.Time) bool {
	return !s.StartTime.After(end) && !s.EndTime.Before(start)
}
