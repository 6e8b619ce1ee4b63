package station

import "time"

// Station is a physical installation site tracked under an opportunity. The
// POC and sizing fields stay optional until provisioning collects them; the
// completeness evaluator decides when the record counts as done.
type Station struct {
	ID            int
	OpportunityID int
	Name          string
	Address       string
	POCName       *string
	POCPhone      *string
	POCEmail      *string
	Pumps         *int
	Employees     *int
	TypeID        *int
	Notes         *string
	CreatedBy     int
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TypeInfo is a row of the station_types reference table.
type TypeInfo struct {
	ID   int
	Name string
}

// CreateParams contains the write parameters for a new station.
type CreateParams struct {
	Name      string
	Address   string
	POCName   *string
	POCPhone  *string
	POCEmail  *string
	Pumps     *int
	Employees *int
	TypeID    *int
	Notes     *string
}

// UpdateParams is a field-level patch. Name and address ignore empty values;
// the optional fields distinguish "not provided" (nil) from an explicit set.
type UpdateParams struct {
	Name      *string
	Address   *string
	POCName   *string
	POCPhone  *string
	POCEmail  *string
	Pumps     *int
	Employees *int
	TypeID    *int
	Notes     *string
}

// Detail is a station together with its derived completeness state.
type Detail struct {
	Station
	Complete      bool
	MissingFields []string
}

func Describe(s Station) Detail {
	return Detail{
		Station:       s,
		Complete:      IsComplete(s),
		MissingFields: MissingFields(s),
	}
}
