package opportunity

import (
	"time"

	"gasopper/station"
)

// Status is the two-state opportunity machine. Unlike leads there is no
// terminal state: manual updates and station-driven recomputation can move an
// opportunity in either direction. Values match the opportunity_statuses
// table.
type Status int

const (
	StatusActive   Status = 1
	StatusComplete Status = 2
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusComplete
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Opportunity mirrors the opportunities table. Each opportunity belongs to
// exactly one lead.
type Opportunity struct {
	ID           int
	LeadID       int
	OwnerName    string
	OwnerAddress string
	StatusID     Status
	AssignedTo   int
	CreatedBy    int
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Detail is an opportunity hydrated with its lead contact, its non-deleted
// stations, and the derived completion figures.
type Detail struct {
	Opportunity
	LeadName             string
	LeadEmail            string
	LeadPhone            string
	Stations             []station.Detail
	TotalStations        int
	CompleteStations     int
	IncompleteStations   int
	CompletionPercentage float64
}

// Summary is the list form: station counts without the full station records.
type Summary struct {
	Opportunity
	LeadName             string
	TotalStations        int
	CompleteStations     int
	CompletionPercentage float64
}

// UpdateParams replaces the owner fields wholesale; only the assignment is
// optional and subject to the assignment rule.
type UpdateParams struct {
	OwnerName    string
	OwnerAddress string
	AssignedTo   *int
}

// ListFilters narrows List output. A nil OwnerIDs means no owner filter.
type ListFilters struct {
	OwnerIDs       []int
	IncludeDeleted bool
}

// CompletionInterval pairs creation and last-update times of a Complete
// opportunity, for the days-to-complete statistic.
type CompletionInterval struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats summarizes the actor's visible opportunities and their stations.
type Stats struct {
	TotalOpportunities            int
	ActiveOpportunities           int
	CompleteOpportunities         int
	CompletionRate                float64
	TotalStations                 int
	CompleteStations              int
	StationCompletionRate         float64
	AverageStationsPerOpportunity float64
	AverageDaysToComplete         int
	StatusBreakdown               map[string]int
}

// StatusInfo is a row of the opportunity_statuses reference table.
type StatusInfo struct {
	ID          Status
	Name        string
	Description *string
}
