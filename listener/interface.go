package listener

import "context"

// Interface runs the wake phrase loop until the audio stream ends or ctx is
// cancelled. Only device errors are returned; everything else is logged and
// the loop carries on listening.
type Interface interface {
	Run(ctx context.Context) error
}

// Archiver keeps a copy of a finished clip before it is uploaded.
type Archiver interface {
	Save(id string, clip []byte) (string, error)
}

type State string

const (
	StateListening State = "listening"
	StateRecording State = "recording"
)
