// Package analysis turns identification service and proxy responses into the
// display record. Every function here is pure and accepts any input shape.
package analysis

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/jdsidebottom/foliumai/internal/plantid"
	"github.com/jdsidebottom/foliumai/pkg/models"
)

const (
	PlantNameNotAPlant     = "Not a Plant"
	PlantNameUnidentified  = "Unidentified Plant"
	PlantNameFailed        = "Identification Failed"
	HealthGood             = "Good"
	HealthNeedsAttention   = "Needs Attention"
	NoIssuesSentinel       = "No major issues detected"
	UnknownIssue           = "Unknown issue"
	NoCommonName           = "No common name available"
	MessageNotAPlant       = "This doesn't appear to be a plant. Please try again with a plant image."
	MessageUnidentified    = "Unable to identify this plant. Try a clearer image with visible leaves."
	MessageFailed          = "Unable to identify plant. Please try again."
	MessageUnreadableReply = "Received an unreadable response. Please try again."

	healthyScore   = 90
	unhealthyScore = 60
	diseasePenalty = 20
	minDiseased    = 30
	maxTreatments  = 3
)

// DefaultCare is the guidance shown for every plant.
var DefaultCare = models.CareGuide{
	Watering:    "Water when soil feels dry",
	Light:       "Bright, indirect light",
	Humidity:    "Moderate humidity (40-60%)",
	Temperature: "Room temperature (65-75°F)",
}

// DefaultTreatments are used when no disease carries treatment advice.
var DefaultTreatments = []string{
	"Ensure proper drainage",
	"Maintain consistent watering schedule",
	"Provide adequate light",
}

// NaturalRemedies is identical for every species.
var NaturalRemedies = []string{
	"Neem oil spray for pest prevention",
	"Cinnamon powder on soil to prevent fungal issues",
	"Banana peel tea as natural fertilizer",
	"Coffee grounds mixed with soil for acid-loving plants",
}

// envelope holds the loosely typed top-level fields of a proxy body.
type envelope struct {
	Error       json.RawMessage `json:"error"`
	Message     json.RawMessage `json:"message"`
	PlantName   json.RawMessage `json:"plantName"`
	HealthScore json.RawMessage `json:"healthScore"`
	Retryable   json.RawMessage `json:"retryable"`
	Code        json.RawMessage `json:"code"`
	JobID       json.RawMessage `json:"jobId"`
	Result      json.RawMessage `json:"result"`
}

// Normalize maps a proxy response body onto an AnalysisRecord.
func Normalize(body []byte) models.AnalysisRecord {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.ErrorRecord(PlantNameFailed, MessageUnreadableReply)
	}

	if errorFlagSet(env.Error) {
		return errorRecordFrom(env)
	}

	resp := &plantid.Response{}
	if len(env.Result) > 0 && string(env.Result) != "null" {
		var result plantid.Result
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return models.ErrorRecord(PlantNameFailed, MessageUnreadableReply)
		}
		resp.Result = &result
	}
	return NormalizeResponse(resp)
}

// NormalizeResponse maps an already parsed service answer onto an AnalysisRecord.
func NormalizeResponse(resp *plantid.Response) models.AnalysisRecord {
	var result *plantid.Result
	if resp != nil {
		result = resp.Result
	}

	if !isPlant(result) {
		return models.ErrorRecord(PlantNameNotAPlant, MessageNotAPlant)
	}
	if !result.HasSuggestions() {
		return models.ErrorRecord(PlantNameUnidentified, MessageUnidentified)
	}

	top := result.Classification.Suggestions[0]
	details := top.Details
	if details == nil {
		details = &plantid.SuggestionDetails{}
	}

	commonName := NoCommonName
	for _, n := range details.CommonNames {
		if strings.TrimSpace(n) != "" {
			commonName = n
			break
		}
	}

	healthy, diseases := result.Health()
	isHealthy := healthy == nil || healthy.Binary == nil || *healthy.Binary

	health := HealthGood
	if !isHealthy {
		health = HealthNeedsAttention
	}

	care := DefaultCare
	return models.AnalysisRecord{
		PlantName:       top.Name,
		CommonName:      commonName,
		Confidence:      Confidence(top.Probability),
		Health:          health,
		HealthScore:     HealthScore(isHealthy, len(diseases)),
		Issues:          issues(diseases),
		Care:            &care,
		Treatments:      treatments(diseases),
		NaturalRemedies: append([]string(nil), NaturalRemedies...),
		URL:             details.URL,
		Description:     string(details.Description),
	}
}

// HealthScore is 90 when healthy, 60 otherwise, and max(30, 90-20n) once any disease is reported.
func HealthScore(healthy bool, diseaseCount int) int {
	score := unhealthyScore
	if healthy {
		score = healthyScore
	}
	if diseaseCount > 0 {
		score = healthyScore - diseasePenalty*diseaseCount
		if score < minDiseased {
			score = minDiseased
		}
	}
	return clamp(score)
}

// Confidence converts a probability into a whole percentage within [0,100].
func Confidence(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	return clamp(int(math.Round(p * 100)))
}

func isPlant(r *plantid.Result) bool {
	if r == nil || r.IsPlant == nil {
		return false
	}
	if r.IsPlant.Binary != nil && *r.IsPlant.Binary {
		return true
	}
	return r.IsPlant.Probability != nil && *r.IsPlant.Probability > 0.5
}

func issues(diseases []plantid.DiseaseSuggestion) []string {
	if len(diseases) == 0 {
		return []string{NoIssuesSentinel}
	}
	out := make([]string, 0, len(diseases))
	for _, d := range diseases {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			name = UnknownIssue
		}
		out = append(out, name)
	}
	return out
}

// treatments takes each disease's organic advice, or its chemical advice when
// no organic advice exists, and keeps the first three.
func treatments(diseases []plantid.DiseaseSuggestion) []string {
	var out []string
	for _, d := range diseases {
		if d.Details == nil || d.Details.Treatment == nil {
			continue
		}
		t := d.Details.Treatment
		advice := t.Organic
		if len(advice) == 0 {
			advice = t.Chemical
		}
		out = append(out, advice...)
		if len(out) >= maxTreatments {
			return out[:maxTreatments]
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultTreatments...)
	}
	return out
}

func errorFlagSet(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func errorRecordFrom(env envelope) models.AnalysisRecord {
	message := stringOr(env.Message, "")
	if message == "" {
		// Some upstream error bodies carry the text in the error field itself.
		message = stringOr(env.Error, MessageFailed)
	}
	rec := models.ErrorRecord(stringOr(env.PlantName, PlantNameFailed), message)

	var score float64
	if len(env.HealthScore) > 0 && json.Unmarshal(env.HealthScore, &score) == nil && !math.IsNaN(score) {
		rec.HealthScore = clamp(int(math.Round(score)))
	}
	var retryable bool
	if len(env.Retryable) > 0 && json.Unmarshal(env.Retryable, &retryable) == nil {
		rec.Retryable = retryable
	}
	rec.Code = stringOr(env.Code, "")
	rec.JobID = stringOr(env.JobID, "")
	return rec
}

func stringOr(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if json.Unmarshal(raw, &s) != nil || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
