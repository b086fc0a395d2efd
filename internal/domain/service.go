package domain

// DefaultServiceLabel is used for timesheet types outside the known table
const DefaultServiceLabel = "standard service"

var serviceLabels = map[int]string{
	1: "clock-in",
	2: "clock-out",
	3: "break-start",
	4: "break-end",
	5: "lunch-break",
}

// ServiceLabel maps a timesheet type id to its display name
func ServiceLabel(typeID int) string {
	if l, ok := serviceLabels[typeID]; ok {
		return l
	}
	return DefaultServiceLabel
}
