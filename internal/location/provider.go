// Package location delivers user positions to sessions. Positions arrive
// over HTTP and are fanned out to subscribers; a provider created without
// permission refuses everything with campus.ErrPermissionDenied.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/geo"
)

// ErrNoFix is returned by LastKnown before any position was pushed.
var ErrNoFix = errors.New("no location fix yet")

// Provider supplies the last known position and a stream of updates.
type Provider interface {
	LastKnown(ctx context.Context) (geo.Coordinate, error)
	Subscribe() (<-chan geo.Coordinate, func(), error)
}

// PushProvider is a Provider fed by Push.
type PushProvider struct {
	mu      sync.Mutex
	granted bool
	last    geo.Coordinate
	hasLast bool
	subs    map[int]chan geo.Coordinate
	nextID  int
}

// NewPushProvider creates a provider. granted is the user's answer to the
// location permission prompt.
func NewPushProvider(granted bool) *PushProvider {
	return &PushProvider{granted: granted, subs: make(map[int]chan geo.Coordinate)}
}

// Granted reports whether location permission was given.
func (p *PushProvider) Granted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

// LastKnown returns the latest pushed position.
func (p *PushProvider) LastKnown(ctx context.Context) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return geo.Coordinate{}, campus.ErrPermissionDenied
	}
	if !p.hasLast {
		return geo.Coordinate{}, ErrNoFix
	}
	return p.last, nil
}

// Subscribe returns a channel of updates and a cancel func. Each channel
// holds only the newest undelivered position; a slow reader skips stale
// fixes. cancel closes the channel and is safe to call more than once.
func (p *PushProvider) Subscribe() (<-chan geo.Coordinate, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return nil, nil, campus.ErrPermissionDenied
	}

	id := p.nextID
	p.nextID++
	ch := make(chan geo.Coordinate, 1)
	p.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Push records a new position and delivers it to every subscriber.
func (p *PushProvider) Push(pos geo.Coordinate) error {
	if !pos.Valid() {
		return fmt.Errorf("%w: %s", campus.ErrInvalidCoordinate, pos)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return campus.ErrPermissionDenied
	}

	p.last = pos
	p.hasLast = true
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- pos
	}
	return nil
}
