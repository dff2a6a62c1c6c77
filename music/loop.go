package music

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JeanRibes/looper/shared"

	charmlog "github.com/charmbracelet/log"
)

// SessionStore saves and loads whole sessions.
type SessionStore interface {
	SaveSession(filepath string, t Transport, tracks [NumTracks]Track) error
	LoadSession(filepath string) (Transport, []Loop, error)
}

const DEFAULT_TICK = 5 * time.Millisecond

// ActionFromMessage turns a bus message into a sequencer action. ok is false
// for messages that are not actions.
func ActionFromMessage(msg shared.Message) (a Action, ok bool, err error) {
	switch msg.Type {
	case shared.RecordToggle:
		return ToggleRecord(msg.Number), true, nil
	case shared.EraseToggle:
		return ToggleErase(msg.Number), true, nil
	case shared.MuteToggle:
		return ToggleMute(msg.Number), true, nil
	case shared.MicToggle:
		return ToggleMic(), true, nil
	case shared.AnimateToggle:
		return ToggleAnimate(), true, nil
	case shared.ModeSwitch:
		return SwitchVoice(VoiceID(msg.Number)), true, nil
	case shared.InputMode:
		m, err := ParseInputMode(msg.String)
		if err != nil {
			return a, false, err
		}
		return ChangeInputMode(m), true, nil
	case shared.Tempo:
		return ChangeTempo(float64(msg.Number)), true, nil
	case shared.Note:
		return PlayNote(uint8(msg.Number), uint8(msg.Number2), msg.Boolean), true, nil
	case shared.Pedal:
		return SetPedal(msg.Boolean), true, nil
	}
	return a, false, nil
}

// Run drives the sequencer: it ticks every interval and forwards the bus
// messages until ctx is done or a Quit message arrives. The logger is taken
// from ctx.
func Run(ctx context.Context, seq *Sequencer, store SessionStore, interval time.Duration, sink <-chan shared.Message) error {
	logger := charmlog.FromContext(ctx)
	if interval <= 0 {
		interval = DEFAULT_TICK
	}
	logger.Info("start", "tick", interval, "bpm", seq.Clock().BPM())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

loopchan:
	for {
		select {
		case <-ctx.Done():
			logger.Debug("context Done")
			break loopchan
		case now := <-ticker.C:
			// failures are already logged and published by the sequencer
			_ = seq.Tick(now.Sub(last))
			last = now
		case msg, ok := <-sink:
			if !ok {
				break loopchan
			}
			switch msg.Type {
			case shared.Quit:
				logger.Debug("quit")
				break loopchan
			case shared.StateExport:
				fileName := msg.String
				if !strings.HasSuffix(fileName, ".mid") {
					fileName += ".mid"
				}
				logger.Info("saving to", "filename", fileName)
				if err := store.SaveSession(fileName, seq.Clock().Transport(), seq.Tracks()); err != nil {
					seq.report(fmt.Errorf("save %s: %w", fileName, err))
				}
			case shared.StateImport:
				logger.Info("loading state", "file", msg.String)
				if err := load(seq, store, msg.String); err != nil {
					seq.report(fmt.Errorf("load %s: %w", msg.String, err))
				}
			default:
				a, ok, err := ActionFromMessage(msg)
				if err != nil {
					logger.Warn("bad message", "msg", msg.Type, "err", err)
					continue
				}
				if !ok {
					logger.Printf("unknown message type: %#v", msg.Type)
					continue
				}
				seq.Enqueue(a)
			}
		}
	}
	logger.Info("stop")
	return nil
}

func load(seq *Sequencer, store SessionStore, filepath string) error {
	t, loops, err := store.LoadSession(filepath)
	if len(loops) == 0 && err != nil {
		return err
	}
	if terr := seq.SetTransport(t); terr != nil {
		return terr
	}
	if rerr := seq.Restore(loops); rerr != nil {
		return rerr
	}
	return err
}
