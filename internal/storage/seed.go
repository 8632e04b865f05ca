package storage

import (
	"context"
	"fmt"

	"booking/internal/models"
)

// DemoResources is the catalog loaded by SeedDemoData
var DemoResources = []models.Resource{
	{Title: "The Go Programming Language", Author: "Alan Donovan, Brian Kernighan", Keywords: "go, programming", ResourceType: models.ResourceTypeBook},
	{Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", Keywords: "databases, distributed systems", ResourceType: models.ResourceTypeBook},
	{Title: "Study Room 1", Keywords: "quiet, 4 seats", ResourceType: models.ResourceTypeMeetingRoom},
	{Title: "Conference Room B", Keywords: "projector, 12 seats", ResourceType: models.ResourceTypeMeetingRoom},
	{Title: "Portable Projector", Keywords: "hdmi, av", ResourceType: models.ResourceTypeEquipment},
	{Title: "Laptop Cart", Keywords: "laptops, charging", ResourceType: models.ResourceTypeEquipment},
}

// SeedDemoData inserts DemoResources when the catalog is empty
func SeedDemoData(ctx context.Context, s Storage) (int, error) {
	_, total, err := s.ListResources(ctx, models.ResourceFilter{}, models.PageRequest{Size: 1})
	if err != nil {
		return 0, fmt.Errorf("failed to check existing resources: %w", err)
	}
	if total > 0 {
		return 0, nil
	}

	for _, r := range DemoResources {
		if _, err := s.CreateResource(ctx, r); err != nil {
			return 0, fmt.Errorf("failed to seed resource %q: %w", r.Title, err)
		}
	}
	return len(DemoResources), nil
}
