package music

// Token is a handle on a buffer owned by the renderer. Zero means none.
type Token uint64

// Renderer owns loop content. Its methods are called from the scheduler tick
// and must return quickly; any blocking work belongs to the renderer.
type Renderer interface {
	AllocateBuffer(track int) (Token, error)
	ReleaseBuffer(tok Token)
	RenderLoop(tok Token, loopBeats int)
}

// Muter is implemented by renderers that can silence a loop mid-cycle.
type Muter interface {
	MuteLoop(tok Token, muted bool)
}

// Capturer is implemented by renderers that record performance events.
type Capturer interface {
	Capture(tok Token, ev NoteEvent)
}

// NoteEvent is a performance event captured into a recording track.
// Beat is the offset from the start of the loop.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	On       bool
	Voice    VoiceID
	Sample   string
	Beat     float64
}
