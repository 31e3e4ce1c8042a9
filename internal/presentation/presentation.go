// Package presentation describes the visual and audio effects the pages
// play. The server never renders them; it only tells the page which cue to
// play and with what parameters.
package presentation

import (
	"context"
	"sync"
)

type Cue string

const (
	CueAmbientParticles Cue = "ambient_particles"
	CueRevealCard       Cue = "reveal_card"
	CuePlayMusic        Cue = "play_music"
	CuePlaySFX          Cue = "play_sfx"
	CueBurstConfetti    Cue = "burst_confetti"
	CueStatusChange     Cue = "status_change"
	CueFadeOutRedirect  Cue = "fade_out_redirect"
	CueShowToast        Cue = "show_toast"
	CueHeartbeat        Cue = "heartbeat"
)

// Event is one cue with its parameters, e.g. the toast message or the
// redirect target.
type Event struct {
	Cue    Cue            `json:"cue"`
	Params map[string]any `json:"params,omitempty"`
}

// Presenter plays cues. Present is fire-and-forget: it must not block on
// the page and has no result.
type Presenter interface {
	Present(ctx context.Context, event Event)
}

// Func adapts a function to Presenter.
type Func func(ctx context.Context, event Event)

func (f Func) Present(ctx context.Context, event Event) {
	f(ctx, event)
}

// Discard drops every cue.
var Discard Presenter = Func(func(context.Context, Event) {})

// Recorder collects cues so they can be returned with a response.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Present(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the cues recorded so far, in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Cues returns only the cue names, in order.
func (r *Recorder) Cues() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Cue, len(r.events))
	for i, event := range r.events {
		out[i] = event.Cue
	}
	return out
}

// Tracks and sound effects known to the pages.
const (
	TrackRomanticFemale = "romanticFemale"
	TrackRomanticMale   = "romanticMale"
	TrackCelebration    = "celebration"

	SFXSuccess   = "success"
	SFXConfetti  = "confetti"
	SFXHeartbeat = "heartbeat"
)

// Toast builds a show_toast cue. Kind is "success", "error" or "info".
func Toast(kind, message string) Event {
	return Event{Cue: CueShowToast, Params: map[string]any{"kind": kind, "message": message}}
}

// Music builds a play_music cue.
func Music(track string) Event {
	return Event{Cue: CuePlayMusic, Params: map[string]any{"track": track}}
}

// SFX builds a play_sfx cue.
func SFX(name string) Event {
	return Event{Cue: CuePlaySFX, Params: map[string]any{"sound": name}}
}

// Redirect builds a fade_out_redirect cue.
func Redirect(url string) Event {
	return Event{Cue: CueFadeOutRedirect, Params: map[string]any{"url": url}}
}

// Confetti builds a burst_confetti cue. Continuous confetti keeps firing
// until the page is left.
func Confetti(particles int, continuous bool) Event {
	return Event{Cue: CueBurstConfetti, Params: map[string]any{"particles": particles, "continuous": continuous}}
}

func Play(ctx context.Context, p Presenter, events ...Event) {
	if p == nil {
		return
	}
	for _, event := range events {
		p.Present(ctx, event)
	}
}
