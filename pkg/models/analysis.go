package models

// AnalysisRecord is the UI-facing result of one identify attempt.
// It is either an error record (Error true) or a success record.
type AnalysisRecord struct {
	Error       bool   `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	PlantName   string `json:"plantName"`
	HealthScore int    `json:"healthScore"`

	// Success fields
	CommonName      string     `json:"commonName,omitempty"`
	Confidence      int        `json:"confidence,omitempty"`
	Health          string     `json:"health,omitempty"`
	Issues          []string   `json:"issues,omitempty"`
	Care            *CareGuide `json:"care,omitempty"`
	Treatments      []string   `json:"treatments,omitempty"`
	NaturalRemedies []string   `json:"naturalRemedies,omitempty"`
	URL             string     `json:"url,omitempty"`
	Description     string     `json:"description,omitempty"`

	// Error diagnostics; the message never depends on them
	Retryable bool   `json:"retryable,omitempty"`
	Code      string `json:"code,omitempty"`
	JobID     string `json:"jobId,omitempty"`
}

// CareGuide holds the care guidance strings.
type CareGuide struct {
	Watering    string `json:"watering"`
	Light       string `json:"light"`
	Humidity    string `json:"humidity"`
	Temperature string `json:"temperature"`
}

// ErrorRecord builds an error record with a zero health score.
func ErrorRecord(plantName, message string) AnalysisRecord {
	return AnalysisRecord{
		Error:       true,
		Message:     message,
		PlantName:   plantName,
		HealthScore: 0,
	}
}
