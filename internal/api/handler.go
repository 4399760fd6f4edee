package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"smart-attendance-backend/internal/engine"
	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/store"
)

// SessionController is the engine surface the session endpoints drive.
type SessionController interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() engine.Status
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	sessions      SessionController
	index         *recognize.Index
	webpush       *webpush.Options
	templateSizes []int
}

// NewHandler creates a new API handler. templateSizes are the raster sizes
// each registration image is reduced to.
func NewHandler(s store.Store, sessions SessionController, index *recognize.Index, webpushOptions *webpush.Options, templateSizes []int) *Handler {
	return &Handler{
		store:         s,
		sessions:      sessions,
		index:         index,
		webpush:       webpushOptions,
		templateSizes: templateSizes,
	}
}
