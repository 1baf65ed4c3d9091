package service

import (
	"context"

	"estateadmin/internal/database"
	"estateadmin/internal/models"
)

// DashboardOverview is the aggregate block behind the admin landing page.
type DashboardOverview struct {
	TotalProperties     int                              `json:"total_properties"`
	ActiveProperties    int                              `json:"active_properties"`
	TotalUsers          int                              `json:"total_users"`
	ReservationsByState map[models.ReservationStatus]int `json:"reservations_by_status"`
	PropertiesByType    map[string]int                   `json:"properties_by_type"`
	PropertiesByStatus  map[string]int                   `json:"properties_by_status"`
	RecentProperties    []*models.Property               `json:"recent_properties"`
	RecentReservations  []*models.Reservation            `json:"recent_reservations"`
}

const recentLimit = 5

// DashboardService assembles the overview from the store aggregates.
type DashboardService struct {
	db *database.DB
}

func NewDashboardService(db *database.DB) *DashboardService {
	return &DashboardService{db: db}
}

func (s *DashboardService) Overview(ctx context.Context) (*DashboardOverview, error) {
	total, active, err := s.db.CountProperties(ctx)
	if err != nil {
		return nil, err
	}

	users, err := s.db.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	byStatus, err := s.db.CountReservationsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	byType, err := s.db.CountPropertiesByType(ctx)
	if err != nil {
		return nil, err
	}

	byPropStatus, err := s.db.CountPropertiesByStatus(ctx)
	if err != nil {
		return nil, err
	}

	recentProps, err := s.db.RecentProperties(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	recentRes, err := s.db.RecentReservations(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	return &DashboardOverview{
		TotalProperties:     total,
		ActiveProperties:    active,
		TotalUsers:          users,
		ReservationsByState: byStatus,
		PropertiesByType:    byType,
		PropertiesByStatus:  byPropStatus,
		RecentProperties:    recentProps,
		RecentReservations:  recentRes,
	}, nil
}
