// Package upload runs the client side of an identification: validate the
// selected photo, compress it, submit it to the proxy and keep the latest record.
package upload

import (
	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/jdsidebottom/foliumai/internal/imaging"
	"github.com/jdsidebottom/foliumai/pkg/models"
	"github.com/jdsidebottom/foliumai/pkg/validation"
)

// EncodedImage is a compressed photo ready to be sent to the proxy.
type EncodedImage struct {
	Base64 string `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int    `json:"bytes"`
}

// Pipeline validates and compresses selected files.
type Pipeline struct {
	validator *validation.FileValidator
	opts      imaging.Options
}

// NewPipeline creates a pipeline accepting files up to maxBytes.
func NewPipeline(maxBytes int64, opts imaging.Options) *Pipeline {
	return &Pipeline{
		validator: validation.NewFileValidator(maxBytes),
		opts:      opts,
	}
}

// Validate rejects the file before any processing or network call.
func (p *Pipeline) Validate(file models.UploadedFile) error {
	return p.validator.Validate(file)
}

// Compress re-encodes the file as a downscaled JPEG.
func (p *Pipeline) Compress(file models.UploadedFile) (*EncodedImage, error) {
	res, err := imaging.Compress(file.Data, p.opts)
	if err != nil {
		return nil, apperrors.NewProcessingError("Could not process this image. Please try a different photo.", err)
	}
	return &EncodedImage{
		Base64: res.Base64(),
		Width:  res.Width,
		Height: res.Height,
		Bytes:  len(res.JPEG),
	}, nil
}

// Prepare validates then compresses.
func (p *Pipeline) Prepare(file models.UploadedFile) (*EncodedImage, error) {
	if err := p.Validate(file); err != nil {
		return nil, err
	}
	return p.Compress(file)
}

// RecordFromError converts a local failure into the error record shown to the user.
func RecordFromError(err error) models.AnalysisRecord {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewProcessingError("Could not process this image. Please try a different photo.", err)
	}
	rec := models.ErrorRecord(appErr.PlantName, appErr.Message)
	rec.Retryable = appErr.Retryable
	rec.Code = string(appErr.Type)
	rec.JobID = appErr.JobID
	return rec
}
