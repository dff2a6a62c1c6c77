package music

import (
	"errors"
	"fmt"

	"github.com/JeanRibes/looper/shared"
)

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrTrackBusy         = errors.New("another track is recording")
	ErrQueueOverflow     = errors.New("action queue overflow")
	ErrBufferUnavailable = errors.New("buffer unavailable")
	ErrNoContent         = errors.New("track has no loop")
	ErrOverdub           = errors.New("track already holds a loop")
	ErrUnknownTrack      = errors.New("unknown track")
)

// TrackError ties a runtime failure to the track and action that caused it.
type TrackError struct {
	Track  int
	Action ActionKind
	Err    error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("%s: %s: %v", shared.TrackName(e.Track), e.Action, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

func trackErr(track int, kind ActionKind, err error) error {
	return &TrackError{Track: track, Action: kind, Err: err}
}
