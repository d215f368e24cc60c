package plantid

import (
	"bytes"
	"encoding/json"
)

// IdentificationRequest is the body posted to the identification endpoint.
type IdentificationRequest struct {
	Images              []string `json:"images"`
	SimilarImages       bool     `json:"similar_images"`
	ClassificationLevel string   `json:"classification_level,omitempty"`
	Health              string   `json:"health,omitempty"`
	Async               bool     `json:"async,omitempty"`
}

// Response is the service answer. Every field is optional: a synchronous
// answer carries Result, an accepted job carries ID and AccessToken.
type Response struct {
	ID          string  `json:"id,omitempty"`
	AccessToken string  `json:"access_token,omitempty"`
	Status      string  `json:"status,omitempty"`
	Result      *Result `json:"result,omitempty"`
}

// Result is the structured identification answer.
type Result struct {
	IsPlant          *Judgment         `json:"is_plant,omitempty"`
	Classification   *Classification   `json:"classification,omitempty"`
	HealthAssessment *HealthAssessment `json:"health_assessment,omitempty"`

	// Newer API revisions report health at the top level of result.
	IsHealthy *Judgment    `json:"is_healthy,omitempty"`
	Disease   *DiseaseList `json:"disease,omitempty"`
}

// Judgment is a binary decision with its probability.
type Judgment struct {
	Binary      *bool    `json:"binary,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
}

type Classification struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestion is one ranked candidate species.
type Suggestion struct {
	ID            string             `json:"id,omitempty"`
	Name          string             `json:"name"`
	Probability   float64            `json:"probability"`
	Details       *SuggestionDetails `json:"details,omitempty"`
	SimilarImages []SimilarImage     `json:"similar_images,omitempty"`
}

type SuggestionDetails struct {
	CommonNames   []string   `json:"common_names,omitempty"`
	URL           string     `json:"url,omitempty"`
	NameAuthority string     `json:"name_authority,omitempty"`
	Description   Text       `json:"description,omitempty"`
	Treatment     *Treatment `json:"treatment,omitempty"`
	Language      string     `json:"language,omitempty"`
}

type SimilarImage struct {
	ID         string  `json:"id,omitempty"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity,omitempty"`
	Citation   string  `json:"citation,omitempty"`
}

type HealthAssessment struct {
	IsHealthy *Judgment    `json:"is_healthy,omitempty"`
	Diseases  *DiseaseList `json:"diseases,omitempty"`
}

type DiseaseList struct {
	Suggestions []DiseaseSuggestion `json:"suggestions"`
}

type DiseaseSuggestion struct {
	ID          string             `json:"id,omitempty"`
	Name        string             `json:"name"`
	Probability float64            `json:"probability"`
	Details     *SuggestionDetails `json:"details,omitempty"`
}

type Treatment struct {
	Organic    []string `json:"organic,omitempty"`
	Chemical   []string `json:"chemical,omitempty"`
	Biological []string `json:"biological,omitempty"`
	Prevention []string `json:"prevention,omitempty"`
}

// Text accepts either a plain string or an object carrying a "value" string.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Unknown shapes are dropped rather than failing the whole answer.
		*t = ""
		return nil
	}
	*t = Text(obj.Value)
	return nil
}

// Health returns the health judgment and disease list from wherever the answer placed them.
func (r *Result) Health() (*Judgment, []DiseaseSuggestion) {
	if r == nil {
		return nil, nil
	}
	healthy := r.IsHealthy
	var diseases []DiseaseSuggestion
	if r.Disease != nil {
		diseases = r.Disease.Suggestions
	}
	if ha := r.HealthAssessment; ha != nil {
		if ha.IsHealthy != nil {
			healthy = ha.IsHealthy
		}
		if ha.Diseases != nil {
			diseases = ha.Diseases.Suggestions
		}
	}
	return healthy, diseases
}

// HasSuggestions reports whether a classification with at least one suggestion is present.
func (r *Result) HasSuggestions() bool {
	return r != nil && r.Classification != nil && len(r.Classification.Suggestions) > 0
}

// ReplyKind tags what a successful (2xx) reply carried.
type ReplyKind int

const (
	KindMalformed ReplyKind = iota
	KindResult
	KindJobAccepted
)

func (k ReplyKind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindJobAccepted:
		return "job_accepted"
	default:
		return "malformed"
	}
}

// Reply is a 2xx answer: the raw body and its parsed form.
type Reply struct {
	Status   int
	Body     []byte
	Response *Response
}

// Kind classifies the reply.
func (r *Reply) Kind() ReplyKind {
	if r == nil || r.Response == nil {
		return KindMalformed
	}
	if r.Response.Result != nil {
		return KindResult
	}
	if r.Response.ID != "" && r.Response.AccessToken != "" {
		return KindJobAccepted
	}
	return KindMalformed
}

// ParseResponse decodes a body without assuming any field is present.
func ParseResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
