package distributor

import (
	"context"
	"time"

	"vanu-marketplace/internal/models"
)

const (
	recentOrderCount = 5
	revenueMonths    = 6
)

type MonthlyRevenue struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

type Dashboard struct {
	TotalRevenue  float64          `json:"totalRevenue"`
	TotalOrders   int              `json:"totalOrders"`
	PendingOrders int              `json:"pendingOrders"`
	Monthly       []MonthlyRevenue `json:"monthly"`
	RecentOrders  []models.Order   `json:"recentOrders"`
}

func (s *Service) Dashboard(ctx context.Context, uid string) (*Dashboard, error) {
	orders, err := s.Orders(ctx, uid)
	if err != nil {
		return nil, err
	}
	return summarize(orders, s.now()), nil
}

func monthKey(t time.Time) string {
	return t.Format("Jan 2006")
}

// summarize expects orders newest first. The monthly series covers the
// six calendar months ending with now's month, oldest first.
func summarize(orders []models.Order, now time.Time) *Dashboard {
	d := &Dashboard{TotalOrders: len(orders)}
	byMonth := map[string]float64{}
	for _, o := range orders {
		d.TotalRevenue += o.Total
		if o.Status == models.OrderStatusPending || o.Status == models.OrderStatusAccepted {
			d.PendingOrders++
		}
		byMonth[monthKey(o.Date)] += o.Total
	}

	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := revenueMonths - 1; i >= 0; i-- {
		key := monthKey(first.AddDate(0, -i, 0))
		d.Monthly = append(d.Monthly, MonthlyRevenue{Month: key, Total: byMonth[key]})
	}

	n := len(orders)
	if n > recentOrderCount {
		n = recentOrderCount
	}
	d.RecentOrders = orders[:n]
	return d
}
