package service

import (
	"context"
	"fmt"

	"estateadmin/internal/database"
	"estateadmin/internal/models"

	"github.com/rs/zerolog"
)

// PropertyService owns the listing catalogue behind the admin screens.
type PropertyService struct {
	db     *database.DB
	logger *zerolog.Logger
}

func NewPropertyService(db *database.DB, logger *zerolog.Logger) *PropertyService {
	return &PropertyService{db: db, logger: logger}
}

func (s *PropertyService) Create(ctx context.Context, p *models.Property) error {
	if err := validateProperty(p); err != nil {
		return err
	}
	if err := s.db.CreateProperty(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Int64("property_id", p.ID).Str("title", p.Title).Msg("property created")
	return nil
}

func (s *PropertyService) Update(ctx context.Context, p *models.Property) error {
	if err := validateProperty(p); err != nil {
		return err
	}
	return s.db.UpdateProperty(ctx, p)
}

// Get returns the property and bumps its view counter.
func (s *PropertyService) Get(ctx context.Context, id int64) (*models.Property, error) {
	p, err := s.db.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.IncrementPropertyViews(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int64("property_id", id).Msg("view count increment failed")
	} else {
		p.ViewCount++
	}
	return p, nil
}

func (s *PropertyService) List(ctx context.Context, filter models.PropertyFilter) ([]*models.Property, error) {
	return s.db.ListProperties(ctx, filter)
}

// Deactivate hides the property from the public catalogue without deleting
// its reservation history.
func (s *PropertyService) Deactivate(ctx context.Context, id int64) error {
	p, err := s.db.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	p.IsActive = false
	return s.db.UpdateProperty(ctx, p)
}

func validateProperty(p *models.Property) error {
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", database.ErrInvalidInput)
	}
	if p.Address == "" {
		return fmt.Errorf("%w: address is required", database.ErrInvalidInput)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", database.ErrInvalidInput)
	}
	if p.Status != "" && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", database.ErrInvalidInput, p.Status)
	}
	return nil
}
