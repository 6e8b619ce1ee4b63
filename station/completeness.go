package station

// IsComplete reports whether the station has every field provisioning needs:
// POC name and phone, pump count, employee count, and station type.
func IsComplete(s Station) bool {
	return presentString(s.POCName) &&
		presentString(s.POCPhone) &&
		s.Pumps != nil &&
		s.Employees != nil &&
		s.TypeID != nil
}

// MissingFields enumerates the failing completeness checks. The order is a
// display contract: POC Name, POC Phone, Number of Pumps, Number of
// Employees, Station Type.
func MissingFields(s Station) []string {
	missing := []string{}
	if !presentString(s.POCName) {
		missing = append(missing, "POC Name")
	}
	if !presentString(s.POCPhone) {
		missing = append(missing, "POC Phone")
	}
	if s.Pumps == nil {
		missing = append(missing, "Number of Pumps")
	}
	if s.Employees == nil {
		missing = append(missing, "Number of Employees")
	}
	if s.TypeID == nil {
		missing = append(missing, "Station Type")
	}
	return missing
}

func presentString(v *string) bool {
	return v != nil && *v != ""
}
