package service

import (
	"context"
	"time"

	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/jdsidebottom/foliumai/internal/observer"
	"github.com/jdsidebottom/foliumai/internal/strategy"
	"github.com/jdsidebottom/foliumai/pkg/validation"
)

// IdentificationService forwards identify attempts to the upstream service
type IdentificationService interface {
	// Identify validates the images and runs one attempt through the configured strategy.
	// Every failure is returned as *errors.AppError.
	Identify(ctx context.Context, requestID string, images []string) (*strategy.Outcome, error)

	StrategyName() string
	HasAPIKey() bool
}

// Options configure the identification service
type Options struct {
	UpstreamTimeout time.Duration
	MaxImageKB      int64
	APIKeyPresent   bool
}

type identificationService struct {
	strategy  strategy.IdentificationStrategy
	validator *validation.PayloadValidator
	publisher observer.Subject
	opts      Options
}

// NewIdentificationService creates a new identification service
func NewIdentificationService(
	identificationStrategy strategy.IdentificationStrategy,
	publisher observer.Subject,
	opts Options,
) IdentificationService {
	return &identificationService{
		strategy:  identificationStrategy,
		validator: validation.NewPayloadValidator(opts.MaxImageKB),
		publisher: publisher,
		opts:      opts,
	}
}

func (s *identificationService) Identify(ctx context.Context, requestID string, images []string) (*strategy.Outcome, error) {
	images, err := s.validator.Normalize(images)
	if err != nil {
		return nil, err
	}

	// The credential is checked per request so a missing key never reaches the upstream service.
	if !s.opts.APIKeyPresent {
		return nil, apperrors.NewConfigurationError(
			"The plant identification service is not configured. Please try again later.", nil).
			WithDetails("PLANT_ID_API_KEY is not set")
	}

	if s.opts.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.UpstreamTimeout)
		defer cancel()
	}

	start := time.Now()
	s.notify(ctx, observer.IdentificationEvent{
		EventType:  observer.IdentificationStarted,
		RequestID:  requestID,
		ImageCount: len(images),
	})

	outcome, err := s.strategy.Identify(ctx, images)
	if err != nil {
		appErr, ok := apperrors.As(err)
		if !ok {
			appErr = apperrors.NewInternalError("An unexpected error occurred. Please try again with a different image.", err)
		}
		s.notify(ctx, observer.IdentificationEvent{
			EventType:      observer.IdentificationFailed,
			RequestID:      requestID,
			ImageCount:     len(images),
			ProcessingTime: time.Since(start),
			ErrorCode:      string(appErr.Type),
			ErrorMessage:   appErr.Error(),
			JobID:          appErr.JobID,
		})
		return nil, appErr
	}

	s.notify(ctx, observer.IdentificationEvent{
		EventType:      observer.IdentificationCompleted,
		RequestID:      requestID,
		ImageCount:     len(images),
		ProcessingTime: time.Since(start),
		Success:        true,
		JobID:          outcome.JobID,
		Polls:          outcome.Polls,
	})
	return outcome, nil
}

func (s *identificationService) notify(ctx context.Context, event observer.IdentificationEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	event.Strategy = s.strategy.GetStrategyName()
	// Observers run after the request returns; detach them from its cancellation.
	s.publisher.NotifyObservers(context.WithoutCancel(ctx), event)
}

func (s *identificationService) StrategyName() string {
	return s.strategy.GetStrategyName()
}

func (s *identificationService) HasAPIKey() bool {
	return s.opts.APIKeyPresent
}
