package api

import (
	"context"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/session"
)

// SessionManager defines the session lifecycle operations needed by handlers.
type SessionManager interface {
	Create(ctx context.Context, opts session.CreateOptions) (*session.Session, error)
	Get(id string) (*session.Session, error)
	End(ctx context.Context, id string) error
}

// POIWriter defines the storage operations needed by the POI admin handler.
type POIWriter interface {
	UpsertPOI(ctx context.Context, p *campus.POI) error
}
