package booking

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"booking/internal/models"
)

func validateResource(r models.Resource) error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrTitleRequired
	}
	for _, v := range []string{r.Title, r.Author, r.Keywords} {
		if utf8.RuneCountInString(v) > maxTextLength {
			return ErrFieldTooLong
		}
	}
	if !r.ResourceType.Valid() {
		return ErrInvalidResourceType
	}
	return nil
}

// CreateResource validates and stores a new resource
func (s *Service) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	resource.ID = 0
	if err := validateResource(resource); err != nil {
		return models.Resource{}, err
	}
	created, err := s.store.CreateResource(ctx, resource)
	if err != nil {
		return models.Resource{}, err
	}
	s.logger.Info("Resource created", zap.Int64("id", created.ID), zap.String("title", created.Title))
	return created, nil
}

// UpdateResource replaces an existing resource
func (s *Service) UpdateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	if err := validateResource(resource); err != nil {
		return models.Resource{}, err
	}
	return s.store.UpdateResource(ctx, resource)
}

// PartialUpdateResource merges the patch into the stored resource
func (s *Service) PartialUpdateResource(ctx context.Context, id int64, patch ResourcePatch) (models.Resource, error) {
	resource, err := s.store.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	if patch.Title != nil {
		resource.Title = *patch.Title
	}
	if patch.Author != nil {
		resource.Author = *patch.Author
	}
	if patch.Keywords != nil {
		resource.Keywords = *patch.Keywords
	}
	if patch.ResourceType != nil {
		resource.ResourceType = *patch.ResourceType
	}
	return s.UpdateResource(ctx, resource)
}

// GetResource returns one resource
func (s *Service) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	return s.store.GetResource(ctx, id)
}

// ListResources returns a page of resources matching the filter and the total count
func (s *Service) ListResources(ctx context.Context, filter models.ResourceFilter, page models.PageRequest) ([]models.Resource, int64, error) {
	return s.store.ListResources(ctx, filter, page)
}

// DeleteResource removes a resource together with its reservations
func (s *Service) DeleteResource(ctx context.Context, id int64) error {
	unlock := s.locks.Lock(fmt.Sprintf("resource:%d", id))
	defer unlock()

	if _, err := s.store.GetResource(ctx, id); err != nil {
		return err
	}

	reservations, err := s.store.ListReservationsByResource(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list reservations of resource: %w", err)
	}
	for _, r := range reservations {
		if err := s.store.DeleteReservation(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to delete reservation %d: %w", r.ID, err)
		}
	}

	if err := s.store.DeleteResource(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Resource deleted", zap.Int64("id", id), zap.Int("reservations_removed", len(reservations)))
	return nil
}
