package recognize

import (
	"context"
	"image"
)

// Detector is the external face-detection capability.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]image.Rectangle, error)
}

// Detection is one face found in a frame. StudentID is empty when no
// registered student cleared the matching threshold.
type Detection struct {
	Region     image.Rectangle
	StudentID  string
	Confidence float64
}

// Recognizer composes the detector with template matching to provide the
// detect-and-match capability the attendance engine consumes.
type Recognizer struct {
	detector Detector
	matcher  *Matcher
}

// NewRecognizer creates a recognizer.
func NewRecognizer(detector Detector, matcher *Matcher) *Recognizer {
	return &Recognizer{detector: detector, matcher: matcher}
}

// DetectAndMatch finds faces in the frame and attempts to identify each
// one. Detections are returned in detector order.
func (r *Recognizer) DetectAndMatch(ctx context.Context, frame image.Image) ([]Detection, error) {
	regions, err := r.detector.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, nil
	}

	gray := ToGray(frame)
	detections := make([]Detection, 0, len(regions))
	for _, region := range regions {
		face := CropGray(gray, region)
		if face == nil {
			continue
		}
		studentID, score := r.matcher.Match(face)
		detections = append(detections, Detection{
			Region:     region,
			StudentID:  studentID,
			Confidence: score,
		})
	}
	return detections, nil
}
