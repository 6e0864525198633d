package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"garagestock/internal/household"
	"garagestock/internal/notify"
	"garagestock/internal/repository"
)

// Service is the orchestration layer tying the repositories, household
// membership and notification channel together for the API and the
// background loops.
type Service struct {
	logger    *logrus.Logger
	notifier  notify.Notifier
	Items     *repository.ItemRepository
	Locations *repository.LocationRepository
	Household *household.Manager
}

// New creates a Service with all required dependencies.
func New(logger *logrus.Logger, notifier notify.Notifier,
	items *repository.ItemRepository,
	locations *repository.LocationRepository,
	manager *household.Manager,
) *Service {
	return &Service{
		logger:    logger,
		notifier:  notifier,
		Items:     items,
		Locations: locations,
		Household: manager,
	}
}

// ActiveHouseholdID returns the bound household id, or "" when the device
// operates local-only. Mutations pass this through to the repositories so
// new records land in the right scope.
func (s *Service) ActiveHouseholdID() string {
	if hh := s.Household.Household(); hh != nil {
		return hh.ID
	}
	return ""
}

// SendRestockReminder emits a single notification summarizing every
// low-stock item, the payload a store-proximity trigger would send. A
// no-op when nothing is low.
func (s *Service) SendRestockReminder(ctx context.Context) error {
	low := s.Items.GetLowStock()
	if len(low) == 0 {
		return nil
	}

	var lines []string
	for _, item := range low {
		lines = append(lines, fmt.Sprintf("• %s (%g %s left)", item.Name, item.Quantity, item.Unit))
	}

	n := notify.Notification{
		Title: "Restock Reminder",
		Body:  fmt.Sprintf("%d items need restocking:\n%s", len(low), strings.Join(lines, "\n")),
		Data:  map[string]string{"count": fmt.Sprintf("%d", len(low))},
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("failed to send restock reminder: %w", err)
	}
	return nil
}

// Close drains in-flight remote pushes and tears down subscriptions.
func (s *Service) Close() {
	s.Items.Close()
	s.Locations.Close()
}
