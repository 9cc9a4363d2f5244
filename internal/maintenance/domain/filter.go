package maintenance

// Filter narrows a definition query. Zero-value fields are ignored.
type Filter struct {
	// XID matches the external identifier exactly.
	XID string
	// Name matches as a case-insensitive substring.
	Name string
	// ScheduleType matches the schedule kind exactly.
	ScheduleType ScheduleType
	// Limit caps the result set when positive.
	Limit int
	// Offset skips leading rows when positive.
	Offset int
}
