package lead

import "time"

// Status is the two-state lead machine: a lead is New until a successful
// conversion moves it to Converted. Values match the lead_statuses table.
type Status int

const (
	StatusNew       Status = 1
	StatusConverted Status = 2
)

func (s Status) Valid() bool {
	return s == StatusNew || s == StatusConverted
}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusConverted:
		return "Converted"
	default:
		return "Unknown"
	}
}

// Lead mirrors the leads table plus the resolved id of its opportunity (1:1,
// populated once the lead is converted).
type Lead struct {
	ID               int
	Name             string
	PhoneNumber      string
	Email            string
	Address          string
	ExpectedStations int
	ReferralName     *string
	ReferralEmail    *string
	ReferralPhone    *string
	ReferralAddress  *string
	StatusID         Status
	AssignedTo       int
	CreatedBy        int
	OpportunityID    *int
	Deleted          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateParams contains the write parameters for a new lead. A nil AssignedTo
// defaults to the creator.
type CreateParams struct {
	Name             string
	PhoneNumber      string
	Email            string
	Address          string
	ExpectedStations int
	ReferralName     *string
	ReferralEmail    *string
	ReferralPhone    *string
	ReferralAddress  *string
	AssignedTo       *int
}

// UpdateParams is a field-level patch. The contact fields ignore nil and
// empty values; the referral fields distinguish "not provided" (nil) from an
// explicit set, including set-to-empty. An AssignedTo change is honored only
// for Admin/Manager actors and silently dropped otherwise.
type UpdateParams struct {
	Name             *string
	PhoneNumber      *string
	Email            *string
	Address          *string
	ExpectedStations *int
	ReferralName     *string
	ReferralEmail    *string
	ReferralPhone    *string
	ReferralAddress  *string
	AssignedTo       *int
}

// ConvertParams carries the owner identity for the opportunity created by a
// lead conversion.
type ConvertParams struct {
	OwnerName    string
	OwnerAddress string
	AssignedTo   *int
}

// ListFilters narrows List output. A nil OwnerIDs means no owner filter.
type ListFilters struct {
	OwnerIDs       []int
	IncludeDeleted bool
}

// Stats summarizes the actor's visible leads.
type Stats struct {
	TotalLeads           int
	NewLeads             int
	ConvertedLeads       int
	ConversionRate       float64
	AverageDaysToConvert int
	StatusBreakdown      map[string]int
}

// StatusInfo is a row of the lead_statuses reference table.
type StatusInfo struct {
	ID          Status
	Name        string
	Description *string
}
