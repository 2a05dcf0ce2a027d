package session

import (
	"sync"

	"github.com/stemsi/ieltsmock-backend/internal/model"
)

// Gate is the anti-cheat lock. The exam is blocked while the client is not
// fullscreen or has left the window, and only re-entering fullscreen lifts
// it. The signals come from the client and can be forged, so the gate is a
// deterrent and never a proof of integrity.
type Gate struct {
	mu         sync.Mutex
	fullscreen bool
	leftWindow bool

	onChange    func(blocked bool)
	onViolation func(kind model.ViolationKind)
}

// NewGate returns a gate that starts blocked until the client reports
// fullscreen. Either callback may be nil.
func NewGate(onChange func(blocked bool), onViolation func(kind model.ViolationKind)) *Gate {
	return &Gate{onChange: onChange, onViolation: onViolation}
}

// Blocked reports whether exam interaction is currently refused.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked()
}

func (g *Gate) blocked() bool {
	return !g.fullscreen || g.leftWindow
}

// LeftWindow reports whether the client lost focus since it last entered
// fullscreen.
func (g *Gate) LeftWindow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leftWindow
}

// EnterFullscreen clears both lock conditions.
func (g *Gate) EnterFullscreen() {
	g.update(func() {
		g.fullscreen = true
		g.leftWindow = false
	}, "")
}

// ExitFullscreen records a fullscreen exit.
func (g *Gate) ExitFullscreen() {
	g.update(func() { g.fullscreen = false }, model.ViolationFullscreenExit)
}

// Blur records the window losing focus.
func (g *Gate) Blur() {
	g.update(func() { g.leftWindow = true }, model.ViolationWindowBlur)
}

// Hidden records the tab being hidden.
func (g *Gate) Hidden() {
	g.update(func() { g.leftWindow = true }, model.ViolationTabHidden)
}

func (g *Gate) update(mutate func(), violation model.ViolationKind) {
	g.mu.Lock()
	before := g.blocked()
	mutate()
	after := g.blocked()
	g.mu.Unlock()

	if violation != "" && g.onViolation != nil {
		g.onViolation(violation)
	}
	if before != after && g.onChange != nil {
		g.onChange(after)
	}
}
