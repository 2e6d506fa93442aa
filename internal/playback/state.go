// Package playback drives a single story playback session: loading audio,
// transport control, position tracking and progress checkpoints.
package playback

import "storysage/internal/errs"

// State is a playback session state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
	StateFailed  State = "failed"
)

// ErrNoSession is returned by player operations when nothing is loaded.
var ErrNoSession = &errs.Error{Kind: errs.ErrPlayback, Op: "playback", Detail: "no active playback session"}

func invalidTransition(op string, from State) error {
	return &errs.Error{Kind: errs.ErrPlayback, Op: op, Detail: "not allowed while " + string(from)}
}

// InterruptionType distinguishes the start and end of an audio interruption
// such as a phone call.
type InterruptionType string

const (
	InterruptionBegan InterruptionType = "began"
	InterruptionEnded InterruptionType = "ended"
)

// Interruption is an OS audio interruption notification.
type Interruption struct {
	Type         InterruptionType `json:"type"`
	ShouldResume bool             `json:"should_resume"`
}

// RouteChangeReason describes why the audio output route changed.
type RouteChangeReason string

const (
	RouteNewDeviceAvailable   RouteChangeReason = "new_device_available"
	RouteOldDeviceUnavailable RouteChangeReason = "old_device_unavailable"
	RouteCategoryChange       RouteChangeReason = "category_change"
)
