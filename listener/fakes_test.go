package listener

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"assistant-wake-recorder/app_errors"
	"assistant-wake-recorder/speech_decoder"
)

const (
	testFrameBytes = 8
	testSampleRate = 16000
	testStep       = 100 * time.Millisecond
	testKeyphrase  = "hey rodney"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) offset() time.Duration {
	return c.Now().Sub(epoch)
}

// fakeSource yields frames stamped with their index, one every testStep of
// fake time.
type fakeSource struct {
	clock  *fakeClock
	frames int
	next   int

	// onFrame runs before frame i is returned.
	onFrame func(i int)
	// failAt returns a device failure instead of frame i when >= 0.
	failAt int

	opened, closed int
}

func newFakeSource(clock *fakeClock, d time.Duration) *fakeSource {
	return &fakeSource{clock: clock, frames: int(d / testStep), failAt: -1}
}

func (s *fakeSource) Open() error {
	s.opened++
	return nil
}

func (s *fakeSource) NextFrame(buf []byte) (int, error) {
	if s.next >= s.frames {
		return 0, io.EOF
	}

	i := s.next
	s.next++
	s.clock.set(epoch.Add(time.Duration(i) * testStep))

	if i == s.failAt {
		return 0, errors.New("device unplugged")
	}

	if s.onFrame != nil {
		s.onFrame(i)
	}

	copy(buf, frameFor(i))
	return testFrameBytes, nil
}

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

func frameFor(i int) []byte {
	frame := make([]byte, testFrameBytes)
	for j := range frame {
		frame[j] = byte(i)
	}
	return frame
}

// fakeDecoder drives speech and hypotheses from fake time offsets.
type fakeDecoder struct {
	clock *fakeClock

	speech func(t time.Duration) bool
	// wake sets the hypothesis when it reports true for a frame.
	wake func(t time.Duration) bool
	// wakeWhileRecording lets wake fire even with search disabled.
	wakeWhileRecording bool
	hypothesis         string
	fail               func(t time.Duration) bool

	inUtterance bool
	inSpeech    bool
	hyp         string

	begins, ends     int
	noSearchFrames   int
	searchFrames     int
	fullUtteranceSet bool
}

func newFakeDecoder(clock *fakeClock) *fakeDecoder {
	return &fakeDecoder{
		clock:      clock,
		speech:     func(time.Duration) bool { return false },
		wake:       func(time.Duration) bool { return false },
		hypothesis: testKeyphrase,
	}
}

func (d *fakeDecoder) BeginUtterance() error {
	if d.inUtterance {
		return app_errors.Decoder("begin utterance", errors.New("already started"))
	}
	d.inUtterance = true
	d.begins++
	return nil
}

func (d *fakeDecoder) EndUtterance() (string, error) {
	if !d.inUtterance {
		return "", app_errors.Decoder("end utterance", errors.New("not started"))
	}
	hyp := d.hyp
	d.inUtterance = false
	d.inSpeech = false
	d.hyp = ""
	d.ends++
	return hyp, nil
}

func (d *fakeDecoder) ProcessFrame(_ []byte, opts speech_decoder.ProcessOptions) error {
	if !d.inUtterance {
		return app_errors.Decoder("process frame", errors.New("not started"))
	}

	t := d.clock.offset()
	if d.fail != nil && d.fail(t) {
		return app_errors.Decoder("process frame", errors.New("search failed"))
	}

	d.inSpeech = d.speech(t)
	if opts.FullUtterance {
		d.fullUtteranceSet = true
	}

	if opts.NoSearch {
		d.noSearchFrames++
	} else {
		d.searchFrames++
	}

	if (!opts.NoSearch || d.wakeWhileRecording) && d.wake(t) {
		d.hyp = d.hypothesis
	}

	return nil
}

func (d *fakeDecoder) InSpeech() bool     { return d.inSpeech }
func (d *fakeDecoder) Hypothesis() string { return d.hyp }

type upload struct {
	at   time.Duration
	clip []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	clock   *fakeClock
	err     error
	uploads []upload
}

func (u *fakeUploader) Upload(_ context.Context, clip []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, upload{at: u.clock.offset(), clip: clip})
	return u.err
}

type fakeNotifier struct {
	err          error
	starts, ends int
}

func (n *fakeNotifier) NotifyStart(context.Context) error {
	n.starts++
	return n.err
}

func (n *fakeNotifier) NotifyEnd(context.Context) error {
	n.ends++
	return n.err
}

type fakeArchive struct {
	saved map[string][]byte
	err   error
}

func (a *fakeArchive) Save(id string, clip []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.saved == nil {
		a.saved = map[string][]byte{}
	}
	a.saved[id] = clip
	return "/archive/" + id + ".wav", nil
}

func at(d time.Duration) func(time.Duration) bool {
	return func(t time.Duration) bool { return t == d }
}

func until(d time.Duration) func(time.Duration) bool {
	return func(t time.Duration) bool { return t <= d }
}

func always(time.Duration) bool { return true }
