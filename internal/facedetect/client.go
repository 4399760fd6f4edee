// Package facedetect calls the external face-detection service. Detection
// itself (the cascade classifier) is not this repository's concern; the
// client only ships a frame out and gets rectangles back.
package facedetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"
)

// Region is one detected face rectangle in frame coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts a region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Client calls the face detection microservice.
type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Skip        bool
	MinFaceSize int
}

// New creates a client. With skip set, Detect returns the full frame as a
// single region, which keeps development and tests independent of a
// running detector.
func New(baseURL string, skip bool, timeout time.Duration, minFaceSize int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:     baseURL,
		Skip:        skip,
		MinFaceSize: minFaceSize,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// Detect posts the frame as JPEG and returns the detected face regions in
// the order the service reports them. Regions below MinFaceSize on either
// side are dropped.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	if c.Skip {
		return []image.Rectangle{frame.Bounds()}, nil
	}
	if c.BaseURL == "" {
		return nil, fmt.Errorf("detector url not configured")
	}

	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detector error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []Region `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	rects := make([]image.Rectangle, 0, len(out.Faces))
	for _, face := range out.Faces {
		if face.W < c.MinFaceSize || face.H < c.MinFaceSize {
			continue
		}
		rects = append(rects, face.Rect().Intersect(frame.Bounds()))
	}
	return rects, nil
}
