package service

import (
	"context"
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

// StatisticsService aggregates dashboard counters over the ticket set.
type StatisticsService struct {
	core
}

// NewStatisticsService constructs the service.
func NewStatisticsService(deps Dependencies) *StatisticsService {
	return &StatisticsService{core: newCore(deps)}
}

// GetTicketStatistics counts tickets by status, priority and age at now.
// resolvedToday counts resolved tickets last updated since UTC midnight.
func (s *StatisticsService) GetTicketStatistics(ctx context.Context, now time.Time) (*domain.TicketStatistics, error) {
	rows, err := s.store.Tickets().ListStatRows(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.TicketStatistics{
		StatusCounts:   make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses)),
		PriorityCounts: make(map[domain.TicketPriority]int, len(domain.AllTicketPriorities)),
	}
	for _, status := range domain.AllTicketStatuses {
		stats.StatusCounts[status] = 0
	}
	for _, priority := range domain.AllTicketPriorities {
		stats.PriorityCounts[priority] = 0
	}

	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, row := range rows {
		stats.StatusCounts[row.Status]++
		stats.PriorityCounts[row.Priority]++
		switch row.Status {
		case domain.TicketStatusNew:
			stats.NewTickets++
		case domain.TicketStatusOpen:
			stats.OpenTickets++
		case domain.TicketStatusResolved:
			if !row.UpdatedAt.Before(midnight) {
				stats.ResolvedToday++
			}
		}
		if row.Priority == domain.TicketPriorityUrgent {
			stats.UrgentTickets++
		}
		if row.Status.Unresolved() {
			switch age := now.Sub(row.CreatedAt); {
			case age < 24*time.Hour:
				stats.AgeBuckets.UnderOneDay++
			case age <= 7*24*time.Hour:
				stats.AgeBuckets.OneToSevenDay++
			default:
				stats.AgeBuckets.OverSevenDays++
			}
		}
	}
	return stats, nil
}
