package upload

import (
	"context"
	"errors"
	"sync"

	"github.com/jdsidebottom/foliumai/pkg/models"
)

// Phase is the state of a session's single attempt slot.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAnalyzing Phase = "analyzing"
	PhaseDone      Phase = "done"
)

var (
	// ErrAttemptInFlight is returned when an attempt is requested while one is running.
	ErrAttemptInFlight = errors.New("an identification is already in progress")
	// ErrNotRetryable is returned by Retry when the current record cannot be retried.
	ErrNotRetryable = errors.New("the current result cannot be retried")
)

// Snapshot is a copy of a session's state.
type Snapshot struct {
	Phase  Phase                  `json:"phase"`
	Record *models.AnalysisRecord `json:"record,omitempty"`
	Image  *EncodedImage          `json:"image,omitempty"`
}

// Session holds at most one attempt at a time and the most recent record.
type Session struct {
	mu        sync.Mutex
	pipeline  *Pipeline
	submitter Submitter
	phase     Phase
	record    *models.AnalysisRecord
	image     *EncodedImage
}

// NewSession creates an idle session.
func NewSession(pipeline *Pipeline, submitter Submitter) *Session {
	return &Session{
		pipeline:  pipeline,
		submitter: submitter,
		phase:     PhaseIdle,
	}
}

// Identify validates, compresses and submits file, replacing the current record.
// Local failures produce an error record without a network call.
func (s *Session) Identify(ctx context.Context, file models.UploadedFile) (models.AnalysisRecord, error) {
	if err := s.begin(false); err != nil {
		return s.current(), err
	}

	img, err := s.pipeline.Prepare(file)
	if err != nil {
		rec := RecordFromError(err)
		s.finish(rec, nil, true)
		return rec, nil
	}

	rec := s.submitter.Submit(ctx, img)
	s.finish(rec, img, false)
	return rec, nil
}

// Retry re-submits the stored image when the current record is retryable.
// The image is neither validated nor compressed again.
func (s *Session) Retry(ctx context.Context) (models.AnalysisRecord, error) {
	if err := s.begin(true); err != nil {
		return s.current(), err
	}

	s.mu.Lock()
	img := s.image
	s.mu.Unlock()

	rec := s.submitter.Submit(ctx, img)
	s.finish(rec, img, false)
	return rec, nil
}

// Snapshot returns the current phase, record and stored image.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Phase: s.phase, Image: s.image}
	if s.record != nil {
		rec := *s.record
		snap.Record = &rec
	}
	return snap
}

func (s *Session) begin(retry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseAnalyzing {
		return ErrAttemptInFlight
	}
	if retry && (s.record == nil || !s.record.Retryable || s.image == nil) {
		return ErrNotRetryable
	}
	s.phase = PhaseAnalyzing
	return nil
}

func (s *Session) finish(rec models.AnalysisRecord, img *EncodedImage, clearImage bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseDone
	s.record = &rec
	if img != nil || clearImage {
		s.image = img
	}
}

func (s *Session) current() models.AnalysisRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return models.AnalysisRecord{}
	}
	return *s.record
}
