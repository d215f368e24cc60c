package strategy

import (
	"context"
	"time"

	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/jdsidebottom/foliumai/internal/plantid"
	"github.com/sirupsen/logrus"
)

// Identifier is the part of the Plant.id client the strategies depend on
type Identifier interface {
	Identify(ctx context.Context, images []string, async bool) (*plantid.Reply, error)
	Poll(ctx context.Context, jobID, accessToken string) (*plantid.Reply, error)
}

// Outcome is a successful identification: the body to pass through and its parsed form
type Outcome struct {
	Body     []byte
	Response *plantid.Response
	JobID    string
	Polls    int
}

// IdentificationStrategy defines how one identify attempt reaches the service
type IdentificationStrategy interface {
	Identify(ctx context.Context, images []string) (*Outcome, error)
	GetStrategyName() string
}

// DirectStrategy submits once and expects the result in the same answer
type DirectStrategy struct {
	client Identifier
}

// NewDirectStrategy creates a new direct strategy
func NewDirectStrategy(client Identifier) IdentificationStrategy {
	return &DirectStrategy{client: client}
}

// Identify performs a single synchronous identification
func (s *DirectStrategy) Identify(ctx context.Context, images []string) (*Outcome, error) {
	reply, err := s.client.Identify(ctx, images, false)
	if err != nil {
		return nil, err
	}
	if reply.Kind() != plantid.KindResult {
		return nil, apperrors.NewInvalidResponseError(nil).WithDetails("response has no result object")
	}
	return &Outcome{Body: reply.Body, Response: reply.Response}, nil
}

// GetStrategyName returns the strategy name
func (s *DirectStrategy) GetStrategyName() string {
	return "direct"
}

// PollStrategy submits a job and polls its status endpoint for a bounded number of attempts
type PollStrategy struct {
	client   Identifier
	interval time.Duration
	attempts int
}

// NewPollStrategy creates a new submit-then-poll strategy
func NewPollStrategy(client Identifier, interval time.Duration, attempts int) IdentificationStrategy {
	if attempts < 1 {
		attempts = 1
	}
	return &PollStrategy{client: client, interval: interval, attempts: attempts}
}

// Identify submits the images and waits for a populated classification.
// Individual poll failures are logged and skipped.
func (s *PollStrategy) Identify(ctx context.Context, images []string) (*Outcome, error) {
	reply, err := s.client.Identify(ctx, images, true)
	if err != nil {
		return nil, err
	}

	// An accepted job may already carry an empty result; only a populated
	// classification, or a result without a job to poll, ends the attempt here.
	hasJob := reply.Response != nil && reply.Response.ID != "" && reply.Response.AccessToken != ""
	switch {
	case reply.Kind() == plantid.KindResult && (reply.Response.Result.HasSuggestions() || !hasJob):
		return &Outcome{Body: reply.Body, Response: reply.Response}, nil
	case hasJob:
	default:
		return nil, apperrors.NewInvalidResponseError(nil).WithDetails("response has neither result nor job reference")
	}

	jobID := reply.Response.ID
	token := reply.Response.AccessToken
	log := logger.WithField("job_id", jobID)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= s.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, apperrors.NewTimeoutError(ctx.Err()).WithJobID(jobID)
		case <-timer.C:
		}

		polled, err := s.client.Poll(ctx, jobID, token)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, apperrors.NewTimeoutError(ctx.Err()).WithJobID(jobID)
			}
			log.WithFields(logrus.Fields{
				"attempt": attempt,
			}).WithError(err).Warn("Poll attempt failed, continuing")
		case polled.Response != nil && polled.Response.Result.HasSuggestions():
			log.WithField("attempt", attempt).Debug("Job completed")
			return &Outcome{Body: polled.Body, Response: polled.Response, JobID: jobID, Polls: attempt}, nil
		default:
			status := ""
			if polled.Response != nil {
				status = polled.Response.Status
			}
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"status":  status,
			}).Debug("Job not finished yet")
		}

		timer.Reset(s.interval)
	}

	log.WithField("attempts", s.attempts).Info("Poll attempts exhausted, job still processing")
	return nil, apperrors.NewPendingError(jobID)
}

// GetStrategyName returns the strategy name
func (s *PollStrategy) GetStrategyName() string {
	return "poll"
}
