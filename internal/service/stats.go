package service

import (
	"time"

	"tg-relaybot/internal/models"
)

// UserStats aggregates the analytics dashboard numbers in one pass.
type UserStats struct {
	Total        int
	Premium      int
	Free         int
	PlusCount    int
	ProCount     int
	SudoLifetime int

	JoinedToday int
	JoinedWeek  int
	JoinedMonth int

	TotalRevenue float64
	RevenueMonth float64
	RevenueToday float64
}

// PremiumPct returns the premium share of the user base.
func (s UserStats) PremiumPct() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Premium) / float64(s.Total) * 100
}

// FreePct returns the free share of the user base.
func (s UserStats) FreePct() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Free) / float64(s.Total) * 100
}

// ComputeUserStats derives dashboard statistics from the full user list
// and the batched plan rows. Plans are fetched in one query rather than
// one lookup per user per render.
func ComputeUserStats(users []models.UserRecord, plans []models.PremiumPlan, now time.Time) UserStats {
	stats := UserStats{Total: len(users)}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	planByUser := make(map[int64]*models.PremiumPlan, len(plans))
	for i := range plans {
		planByUser[plans[i].UserID] = &plans[i]
	}

	for _, user := range users {
		plan := planByUser[user.ID]
		if plan != nil && plan.ActiveAt(now) {
			stats.Premium++
			switch plan.PlanType {
			case models.PlanPlus:
				stats.PlusCount++
			case models.PlanPro:
				stats.ProCount++
			}
			if plan.IsSudoLifetime {
				stats.SudoLifetime++
			}
			if plan.AmountPaid > 0 {
				stats.TotalRevenue += plan.AmountPaid
				if !plan.SubscribedAt.Before(today) {
					stats.RevenueToday += plan.AmountPaid
				}
				if !plan.SubscribedAt.Before(monthAgo) {
					stats.RevenueMonth += plan.AmountPaid
				}
			}
		} else {
			stats.Free++
		}

		if !user.JoinedAt.Before(today) {
			stats.JoinedToday++
		}
		if !user.JoinedAt.Before(weekAgo) {
			stats.JoinedWeek++
		}
		if !user.JoinedAt.Before(monthAgo) {
			stats.JoinedMonth++
		}
	}

	return stats
}

// Dashboard bundles everything one /users render needs.
type Dashboard struct {
	Users []models.UserRecord
	Plans map[int64]*models.PremiumPlan
	Stats UserStats
}

// LoadDashboard fetches the user list and plan rows and computes the
// aggregate statistics.
func LoadDashboard(now time.Time) (*Dashboard, error) {
	users, err := userRepository.ListAll()
	if err != nil {
		return nil, err
	}
	plans, err := userRepository.ListPlans()
	if err != nil {
		return nil, err
	}

	planByUser := make(map[int64]*models.PremiumPlan, len(plans))
	for i := range plans {
		planByUser[plans[i].UserID] = &plans[i]
	}

	return &Dashboard{
		Users: users,
		Plans: planByUser,
		Stats: ComputeUserStats(users, plans, now),
	}, nil
}
