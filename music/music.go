package music

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"
)

type RecEvent struct {
	note     uint8
	vel      uint8
	channel  uint8
	delta    uint32 // ticks from the start of the loop
	duration uint32
}

func (ev RecEvent) Message(on bool) midi.Message {
	if on {
		return midi.NoteOn(ev.channel, ev.note, ev.vel)
	}
	return midi.NoteOff(ev.channel, ev.note)
}

type RecTrack []RecEvent

const TICKS = smf.MetricTicks(960)

func beatTicks(beat float64) uint32 {
	if beat < 0 {
		return 0
	}
	return uint32(beat * float64(TICKS))
}

// Convert reads the notes of a track. Overlapping notes are kept, each
// note-off closes the latest note-on of the same key and channel.
func Convert(tr smf.Track) RecTrack {
	rt := RecTrack{}
	type key struct{ ch, key uint8 }
	open := map[key][]RecEvent{}
	var ch, k, vel uint8
	absTime := uint32(0)
	for _, ev := range tr {
		absTime += ev.Delta
		msg := midi.Message(ev.Message)
		switch {
		case msg.GetNoteStart(&ch, &k, &vel):
			open[key{ch, k}] = append(open[key{ch, k}], RecEvent{
				note:    k,
				vel:     vel,
				channel: ch,
				delta:   absTime,
			})
		case msg.GetNoteEnd(&ch, &k):
			stack := open[key{ch, k}]
			if len(stack) == 0 {
				continue
			}
			on := stack[len(stack)-1]
			open[key{ch, k}] = stack[:len(stack)-1]
			on.duration = absTime - on.delta
			rt = append(rt, on)
		}
	}
	rt.sort()
	return rt
}

func (rt RecTrack) sort() {
	sort.SliceStable(rt, func(i, j int) bool { return rt[i].delta < rt[j].delta })
}

// fit drops the notes starting at or past loopTicks and cuts the ones
// overrunning it.
func (rt RecTrack) fit(loopTicks uint32) RecTrack {
	out := rt[:0]
	for _, ev := range rt {
		if ev.delta >= loopTicks {
			continue
		}
		if ev.duration > loopTicks-ev.delta {
			ev.duration = loopTicks - ev.delta
		}
		out = append(out, ev)
	}
	return out
}

type timed struct {
	at uint32
	on bool
	ev RecEvent
}

// timeline flattens the notes into ordered on/off messages. Notes starting
// past loopTicks are dropped and the ones overrunning it are cut at the end.
func (rt RecTrack) timeline(loopTicks uint32) []timed {
	out := make([]timed, 0, 2*len(rt))
	for _, ev := range rt {
		if loopTicks > 0 && ev.delta >= loopTicks {
			continue
		}
		end := ev.delta + ev.duration
		if loopTicks > 0 && end > loopTicks {
			end = loopTicks
		}
		out = append(out, timed{at: ev.delta, on: true, ev: ev}, timed{at: end, on: false, ev: ev})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].at == out[j].at {
			return !out[i].on && out[j].on // offs before ons on the same tick
		}
		return out[i].at < out[j].at
	})
	return out
}

// Convert writes the notes back as a track, header events first.
func (rt RecTrack) Convert(header ...smf.Message) smf.Track {
	tr := smf.Track{}
	for _, h := range header {
		tr.Add(0, h)
	}
	prev := uint32(0)
	for _, t := range rt.timeline(0) {
		tr.Add(t.at-prev, t.ev.Message(t.on))
		prev = t.at
	}
	tr.Close(0)
	return tr
}

// quantize runs the loop through gomidi's quantizer at the given tempo.
func quantize(rt RecTrack, bpm float64) (RecTrack, error) {
	f := smf.New()
	f.TimeFormat = TICKS
	if err := f.Add(rt.Convert(smf.MetaTempo(bpm))); err != nil {
		return nil, err
	}
	var in, out bytes.Buffer
	if _, err := f.WriteTo(&in); err != nil {
		return nil, err
	}
	if err := quantizer.Quantize(&in, &out); err != nil {
		return nil, err
	}
	q := smf.ReadTracksFrom(&out).SMF()
	if q == nil || q.NumTracks() < 1 {
		return nil, errors.New("quantizer returned no track")
	}
	return Convert(q.Tracks[0]), nil
}

// PlayRTrack plays one cycle of a loop. It returns when the cycle is over or
// ctx is cancelled, and never leaves a note hanging.
func PlayRTrack(ctx context.Context, recordTrack RecTrack, loopTicks uint32, bpm func() float64, muted func() bool, send func(midi.Message) error) error {
	logger := charmlog.FromContext(ctx)
	sounding := map[RecEvent]bool{}
	defer func() {
		for ev := range sounding {
			send(ev.Message(false))
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	prev := uint32(0)
	for _, t := range recordTrack.timeline(loopTicks) {
		if wait := TICKS.Duration(bpm(), t.at-prev); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		prev = t.at

		if t.on {
			if muted() {
				continue
			}
			sounding[t.ev] = true
		} else {
			if !sounding[t.ev] {
				continue
			}
			delete(sounding, t.ev)
		}
		logger.Debug("note", "key", midi.Note(t.ev.note), "on", t.on, "tick", t.at)
		if err := send(t.ev.Message(t.on)); err != nil {
			return err
		}
	}
	return nil
}

// Scheduler decouples the players from the MIDI port: messages are queued
// and written by a single goroutine until ctx is done.
func Scheduler(ctx context.Context, send func(midi.Message) error) func(midi.Message) error {
	queue := make(chan midi.Message, 64)
	logger := charmlog.FromContext(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-queue:
				if err := send(msg); err != nil {
					logger.Error("send", "err", err)
				}
			}
		}
	}()

	return func(m midi.Message) error {
		select {
		case queue <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
