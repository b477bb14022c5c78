package telemetry

// ClassificationResult is the health verdict for one signal reading.
type ClassificationResult struct {
	OutOfRange  bool `json:"out_of_range"`
	IsStale     bool `json:"is_stale"`
	IsCritical  bool `json:"is_critical"`
	IsEmergency bool `json:"is_emergency"`
}

// Classify evaluates a reading against its properties. now and timestamp are
// epoch seconds. The function is pure and total: NaN or negative inputs only
// ever make comparisons false.
func Classify(props SafetyProperties, value, timestamp, now float64) ClassificationResult {
	outOfRange := (props.Lower != nil && value < *props.Lower) ||
		(props.Upper != nil && value > *props.Upper)
	stale := props.StaleAfter != nil && now-timestamp > *props.StaleAfter
	critical := props.Critical != nil && *props.Critical

	return ClassificationResult{
		OutOfRange:  outOfRange,
		IsStale:     stale,
		IsCritical:  critical,
		IsEmergency: critical && (outOfRange || stale),
	}
}

// ClassifyNamed looks the signal up in table first. Unknown names classify as
// all false.
func ClassifyNamed(table *PropertyTable, name string, value, timestamp, now float64) ClassificationResult {
	props, ok := table.Get(name)
	if !ok {
		return ClassificationResult{}
	}
	return Classify(props, value, timestamp, now)
}
