package karotz

import (
	"context"
	"sync"
)

// initialEarsPosition is assumed at start; the rabbit does not report
// ear positions.
const initialEarsPosition = 50

// Ears exposes the ears as a cover with an optimistic 0-100 position.
type Ears struct {
	client *Client

	mu       sync.RWMutex
	position int
}

// Available is always true: the ears are not polled.
func (e *Ears) Available() bool {
	return true
}

// Position returns the last commanded position (0-100).
func (e *Ears) Position() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// IsClosed reports whether the ears are fully down.
func (e *Ears) IsClosed() bool {
	return e.Position() == 0
}

// SetPosition moves both ears to a 0-100 position.
func (e *Ears) SetPosition(ctx context.Context, percent int) bool {
	percent = clamp(percent, 0, 100)
	pos := PercentToEars(percent)
	if !e.client.SetEars(ctx, pos, pos) {
		return false
	}
	e.mu.Lock()
	e.position = percent
	e.mu.Unlock()
	return true
}

// Open raises the ears fully.
func (e *Ears) Open(ctx context.Context) bool {
	return e.SetPosition(ctx, 100)
}

// Close lowers the ears fully.
func (e *Ears) Close(ctx context.Context) bool {
	return e.SetPosition(ctx, 0)
}

// Random moves the ears to random positions. The position is left
// unchanged since the result is unknown.
func (e *Ears) Random(ctx context.Context) bool {
	return e.client.EarsRandom(ctx)
}
