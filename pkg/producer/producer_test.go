package producer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/framegrab/internal/log"
	"github.com/teslashibe/framegrab/pkg/capture"
	"github.com/teslashibe/framegrab/pkg/events"
	"github.com/teslashibe/framegrab/pkg/seek"
)

// newFileMock simulates a well-formed video file with total frames.
func newFileMock(total int) *capture.Mock {
	m := capture.NewMock()
	m.FramesFunc = func() ([]gocv.Mat, error) {
		pos, _ := m.Position()
		if int(pos) >= total {
			return nil, nil
		}
		return []gocv.Mat{capture.SolidFrame(4, 4, gocv.MatTypeCV8UC3, pos)}, nil
	}
	return m
}

func newTestProducer(t *testing.T, src capture.Source, opts ...Option) *Producer {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	p, err := New(src, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// mustPoll fails the test on a poll error.
func mustPoll(t *testing.T, p *Producer) (bool, Batch) {
	t.Helper()
	open, batch, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	return open, batch
}

func TestNewRejectsInvalidWindow(t *testing.T) {
	_, err := New(capture.NewMock(), WithWindow(20, 10))
	if !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("err = %v, want ErrInvalidWindow", err)
	}
}

func TestNewRejectsNilSource(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, ErrNilSource) {
		t.Errorf("err = %v, want ErrNilSource", err)
	}
}

func TestNewSeeksToFirstFrame(t *testing.T) {
	m := newFileMock(30)
	newTestProducer(t, m, WithWindow(10, 19))

	if pos, _ := m.Position(); pos != 10 {
		t.Errorf("Position() = %v, want 10", pos)
	}
	if n := m.CallCount("SetPosition"); n != 1 {
		t.Errorf("SetPosition calls = %d, want 1", n)
	}
}

func TestNewSkipsSeekForLiveDevice(t *testing.T) {
	m := capture.NewMock()
	m.Kind = capture.LiveDevice
	newTestProducer(t, m, WithWindow(10, 19))
	if n := m.CallCount("SetPosition"); n != 0 {
		t.Errorf("SetPosition calls = %d, want 0", n)
	}
}

func TestNewInitialSeekFault(t *testing.T) {
	m := capture.NewMock()
	m.SetPositionFunc = func(float64) error { return errors.New("not seekable") }
	_, err := New(m, WithLogger(log.Discard()))

	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FaultError", err)
	}
	if fe.Op != "initial seek" {
		t.Errorf("Op = %q, want initial seek", fe.Op)
	}
}

func TestBoundedWindowDeliversExactly(t *testing.T) {
	m := newFileMock(30)
	p := newTestProducer(t, m, WithWindow(10, 19))

	var numbers []uint64
	for i := 0; i < 50; i++ {
		open, batch := mustPoll(t, p)
		if !open {
			break
		}
		if batch != nil {
			numbers = append(numbers, batch[0].FrameNumber)
			batch.Close()
		}
	}

	if len(numbers) != 10 {
		t.Fatalf("delivered %d batches, want 10", len(numbers))
	}
	if numbers[0] != 10 || numbers[9] != 19 {
		t.Errorf("frames %d..%d, want 10..19", numbers[0], numbers[9])
	}
	if !m.Released() {
		t.Error("source should be released")
	}
	if p.Delivered() != 10 {
		t.Errorf("Delivered() = %d, want 10", p.Delivered())
	}

	stats := p.Stats()
	if stats.Open || stats.Failed || stats.EmptyStreak != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWindowReleaseIsIdempotent(t *testing.T) {
	m := newFileMock(10)
	p := newTestProducer(t, m, WithWindow(0, 0))

	open, batch := mustPoll(t, p)
	if !open || batch == nil {
		t.Fatalf("first poll: open=%t batch=%v", open, batch)
	}
	batch.Close()

	for i := 0; i < 3; i++ {
		open, batch = mustPoll(t, p)
		if open || batch != nil {
			t.Errorf("poll %d after release: open=%t batch=%v", i, open, batch)
		}
	}
	if n := m.CallCount("Release"); n != 1 {
		t.Errorf("Release calls = %d, want 1", n)
	}
}

func TestCounterTracksOnlyDeliveries(t *testing.T) {
	m := capture.NewMock()
	i := 0
	m.FramesFunc = func() ([]gocv.Mat, error) {
		i++
		if i%2 == 0 {
			return []gocv.Mat{gocv.NewMat()}, nil // empty pull
		}
		return []gocv.Mat{capture.SolidFrame(2, 2, gocv.MatTypeCV8UC3, 1)}, nil
	}
	p := newTestProducer(t, m, WithWindow(0, 2))

	delivered := 0
	for n := 0; n < 20; n++ {
		open, batch := mustPoll(t, p)
		if !open {
			break
		}
		if batch != nil {
			delivered++
			batch.Close()
		}
	}
	if delivered != 3 || p.Delivered() != 3 {
		t.Errorf("delivered = %d, Delivered() = %d, want 3", delivered, p.Delivered())
	}
}

func TestUnboundedWindowNeverReleases(t *testing.T) {
	m := newFileMock(1000)
	p := newTestProducer(t, m)

	for n := 0; n < 100; n++ {
		open, batch := mustPoll(t, p)
		if !open {
			t.Fatalf("poll %d: source closed", n)
		}
		batch.Close()
	}
	if m.Released() {
		t.Error("unbounded window should not release the source")
	}
}

func TestSeekWhilePaused(t *testing.T) {
	m := newFileMock(1000)
	state := seek.New()
	p := newTestProducer(t, m, WithSeek(state))

	// Position 0 -> poll 1 reads frame 0, head moves to 1.
	_, batch := mustPoll(t, p)
	batch.Close()

	state.SetPaused(true)
	state.Add(5)

	_, batch = mustPoll(t, p)
	if batch == nil {
		t.Fatal("no batch after seek")
	}
	// 1 + (5 - 1)
	if batch[0].FrameNumber != 5 {
		t.Errorf("FrameNumber = %d, want 5", batch[0].FrameNumber)
	}
	if state.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", state.Pending())
	}
	batch.Close()

	// Paused with nothing queued: the head steps back one frame before each
	// read, so the same frame is served again.
	for i := 0; i < 3; i++ {
		_, batch = mustPoll(t, p)
		if batch[0].FrameNumber != 5 {
			t.Errorf("paused poll %d: FrameNumber = %d, want 5", i, batch[0].FrameNumber)
		}
		batch.Close()
	}

	state.SetPaused(false)
	_, batch = mustPoll(t, p)
	if batch[0].FrameNumber != 6 {
		t.Errorf("after resume: FrameNumber = %d, want 6", batch[0].FrameNumber)
	}
	batch.Close()
}

func TestSeekOnLiveDeviceDrainsWithoutPositioning(t *testing.T) {
	m := capture.NewMock()
	m.Kind = capture.LiveDevice
	m.FramesFunc = func() ([]gocv.Mat, error) {
		return []gocv.Mat{capture.SolidFrame(2, 2, gocv.MatTypeCV8UC3, 1)}, nil
	}
	state := seek.New()
	state.Add(10)
	p := newTestProducer(t, m, WithSeek(state))

	_, batch := mustPoll(t, p)
	batch.Close()

	if state.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", state.Pending())
	}
	if n := m.CallCount("SetPosition"); n != 0 {
		t.Errorf("SetPosition calls = %d, want 0", n)
	}
}

func TestWatchdogTripsOnThreshold(t *testing.T) {
	m := capture.NewMock() // never returns data
	p := newTestProducer(t, m)

	for i := 1; i < DefaultEmptyFrameThreshold; i++ {
		open, batch, err := p.Poll()
		if err != nil || !open || batch != nil {
			t.Fatalf("poll %d: open=%t batch=%v err=%v", i, open, batch, err)
		}
	}
	if got := p.Stats().EmptyStreak; got != DefaultEmptyFrameThreshold-1 {
		t.Errorf("EmptyStreak = %d, want %d", got, DefaultEmptyFrameThreshold-1)
	}

	open, batch, err := p.Poll()
	if open || batch != nil {
		t.Errorf("tripping poll: open=%t batch=%v", open, batch)
	}
	if !errors.Is(err, ErrTooManyEmptyFrames) {
		t.Fatalf("err = %v, want ErrTooManyEmptyFrames", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q should name the threshold", err)
	}

	// Terminal: later polls do not reach the source.
	calls := m.CallCount("Frames")
	if _, _, err = p.Poll(); !errors.Is(err, ErrProducerFailed) {
		t.Errorf("err = %v, want ErrProducerFailed", err)
	}
	if m.CallCount("Frames") != calls {
		t.Error("failed producer should not read the source")
	}
	if !p.Stats().Failed {
		t.Error("Stats().Failed should be set")
	}
}

func TestWatchdogResetsOnGoodFrame(t *testing.T) {
	m := capture.NewMock()
	m.FramesFunc = capture.FrameSequence(func(i int) ([]gocv.Mat, bool) {
		if i < DefaultEmptyFrameThreshold-1 {
			return nil, false
		}
		return []gocv.Mat{capture.SolidFrame(2, 2, gocv.MatTypeCV8UC3, 1)}, true
	})
	p := newTestProducer(t, m)

	for i := 0; i < DefaultEmptyFrameThreshold-1; i++ {
		mustPoll(t, p)
	}
	open, batch := mustPoll(t, p)
	if !open || batch == nil {
		t.Fatalf("open=%t batch=%v, want a batch", open, batch)
	}
	batch.Close()
	if got := p.Stats().EmptyStreak; got != 0 {
		t.Errorf("EmptyStreak = %d, want 0", got)
	}
}

func TestCustomEmptyFrameThreshold(t *testing.T) {
	p := newTestProducer(t, capture.NewMock(), WithEmptyFrameThreshold(3))
	p.Poll()
	p.Poll()
	if _, _, err := p.Poll(); !errors.Is(err, ErrTooManyEmptyFrames) {
		t.Errorf("err = %v, want ErrTooManyEmptyFrames", err)
	}
}

func TestUnsupportedChannelsIsFatal(t *testing.T) {
	m := capture.NewMock()
	m.FramesFunc = func() ([]gocv.Mat, error) {
		return []gocv.Mat{capture.SolidFrame(2, 2, gocv.MatTypeCV8UC2, 1)}, nil
	}
	p := newTestProducer(t, m)

	open, batch, err := p.Poll()
	if open || batch != nil {
		t.Errorf("open=%t batch=%v", open, batch)
	}
	if !errors.Is(err, ErrUnsupportedChannels) {
		t.Errorf("err = %v, want ErrUnsupportedChannels", err)
	}
	if p.Delivered() != 0 {
		t.Errorf("Delivered() = %d, want 0", p.Delivered())
	}

	if _, _, err = p.Poll(); !errors.Is(err, ErrProducerFailed) {
		t.Errorf("err = %v, want ErrProducerFailed", err)
	}
}

func TestGreyFrameDelivered(t *testing.T) {
	m := capture.NewMock()
	m.FramesFunc = func() ([]gocv.Mat, error) {
		return []gocv.Mat{capture.SolidFrame(2, 2, gocv.MatTypeCV8UC1, 1)}, nil
	}
	p := newTestProducer(t, m)

	_, batch := mustPoll(t, p)
	if batch == nil {
		t.Fatal("no batch")
	}
	defer batch.Close()
	if batch[0].Input.Channels() != 3 {
		t.Errorf("Channels() = %d, want 3", batch[0].Input.Channels())
	}
	if got := p.Stats().GreyConversions; got != 1 {
		t.Errorf("GreyConversions = %d, want 1", got)
	}
}

func TestSourceFaultIsTerminal(t *testing.T) {
	boom := errors.New("decoder crashed")
	m := capture.NewMock()
	m.FramesFunc = func() ([]gocv.Mat, error) { return nil, boom }
	p := newTestProducer(t, m)

	open, batch, err := p.Poll()
	if open || batch != nil {
		t.Errorf("open=%t batch=%v", open, batch)
	}

	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FaultError", err)
	}
	if fe.Op != "frames" {
		t.Errorf("Op = %q, want frames", fe.Op)
	}
	if !errors.Is(err, boom) || !IsFatal(err) {
		t.Errorf("err = %v should wrap the source error and be fatal", err)
	}
}

func TestSourcePanicIsRecovered(t *testing.T) {
	m := capture.NewMock()
	m.FramesFunc = func() ([]gocv.Mat, error) { panic("cgo exploded") }
	p := newTestProducer(t, m)

	open, _, err := p.Poll()
	if open {
		t.Error("open should be false after a panic")
	}
	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FaultError", err)
	}
	if !strings.Contains(err.Error(), "cgo exploded") {
		t.Errorf("error %q should carry the panic value", err)
	}
}

func TestPositionFault(t *testing.T) {
	m := newFileMock(5)
	p := newTestProducer(t, m)
	m.PositionFunc = func() (float64, error) { return 0, errors.New("gone") }

	_, _, err := p.Poll()
	var fe *FaultError
	if !errors.As(err, &fe) || fe.Op != "position" {
		t.Errorf("err = %v, want FaultError{Op: position}", err)
	}
}

func TestClosedSourceReturnsNotOpen(t *testing.T) {
	m := newFileMock(5)
	p := newTestProducer(t, m)
	m.Release()

	open, batch := mustPoll(t, p)
	if open || batch != nil {
		t.Errorf("open=%t batch=%v", open, batch)
	}
	if n := m.CallCount("Frames"); n != 0 {
		t.Errorf("Frames calls = %d, want 0", n)
	}
}

func TestBatchIDs(t *testing.T) {
	m := newFileMock(5)
	n := 0
	p := newTestProducer(t, m, WithIDFunc(func() string {
		n++
		return "id-" + string(rune('0'+n))
	}))

	_, b1 := mustPoll(t, p)
	_, b2 := mustPoll(t, p)
	defer b1.Close()
	defer b2.Close()

	if b1[0].ID != "id-1" || b2[0].ID != "id-2" {
		t.Errorf("IDs = %q, %q", b1[0].ID, b2[0].ID)
	}
}

func TestDefaultIDsAreUUIDs(t *testing.T) {
	p := newTestProducer(t, newFileMock(2))
	_, batch := mustPoll(t, p)
	defer batch.Close()
	if len(batch[0].ID) != 36 {
		t.Errorf("ID %q is not a UUID", batch[0].ID)
	}
}

func TestStereoBatchFromRig(t *testing.T) {
	member := func(v float64) *capture.Mock {
		m := capture.NewMock()
		m.FramesFunc = func() ([]gocv.Mat, error) {
			return []gocv.Mat{capture.SolidFrame(2, 2, gocv.MatTypeCV8UC3, v)}, nil
		}
		return m
	}
	rig, err := capture.NewRig([]capture.Source{member(1), member(2)}, nil)
	if err != nil {
		t.Fatalf("NewRig: %v", err)
	}
	p := newTestProducer(t, rig, WithWindow(3, Unbounded))

	_, batch := mustPoll(t, p)
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}
	defer batch.Close()

	if batch[0].Name != batch[1].Name {
		t.Errorf("names differ: %q, %q", batch[0].Name, batch[1].Name)
	}
	if batch[0].FrameNumber != 3 || batch[1].FrameNumber != 3 {
		t.Errorf("frame numbers = %d, %d, want 3", batch[0].FrameNumber, batch[1].FrameNumber)
	}
	if batch[0].Input.GetUCharAt(0, 0) == batch[1].Input.GetUCharAt(0, 0) {
		t.Error("sensors should carry their own pixels")
	}
}

func TestEventsPublished(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	delivered := make(chan events.BatchDelivered, 16)
	released := make(chan events.SourceReleased, 1)
	events.Subscribe(bus, func(e events.BatchDelivered) { delivered <- e })
	events.Subscribe(bus, func(e events.SourceReleased) { released <- e })

	p := newTestProducer(t, newFileMock(10), WithWindow(0, 1), WithEvents(bus))
	for i := 0; i < 3; i++ {
		_, batch := mustPoll(t, p)
		batch.Close()
	}

	select {
	case e := <-released:
		if e.Delivered != 2 {
			t.Errorf("SourceReleased.Delivered = %d, want 2", e.Delivered)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no SourceReleased event")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(delivered) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(delivered) != 2 {
		t.Errorf("BatchDelivered events = %d, want 2", len(delivered))
	}
}

// awaitEvent waits for a handler verdict; an empty verdict means the stats
// snapshot already matched the event.
func awaitEvent(t *testing.T, verdicts <-chan string, name string) {
	t.Helper()
	select {
	case v := <-verdicts:
		if v != "" {
			t.Errorf("%s: %s", name, v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s event", name)
	}
}

func TestStatsStoredBeforeDeliveryEvents(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	var p *Producer
	ready := make(chan struct{})
	batches := make(chan string, 4)
	releases := make(chan string, 1)
	events.Subscribe(bus, func(e events.BatchDelivered) {
		<-ready
		if st := p.Stats(); st.Delivered < e.Delivered || !st.Open {
			batches <- fmt.Sprintf("stats %+v behind event %+v", st, e)
			return
		}
		batches <- ""
	})
	events.Subscribe(bus, func(e events.SourceReleased) {
		<-ready
		if st := p.Stats(); st.Open || st.Delivered != e.Delivered {
			releases <- fmt.Sprintf("stats %+v behind event %+v", st, e)
			return
		}
		releases <- ""
	})

	p = newTestProducer(t, newFileMock(10), WithWindow(0, 0), WithEvents(bus))
	close(ready)

	_, batch := mustPoll(t, p)
	batch.Close()
	awaitEvent(t, batches, "BatchDelivered")

	if open, _ := mustPoll(t, p); open {
		t.Fatal("source should be released after the window")
	}
	awaitEvent(t, releases, "SourceReleased")
}

func TestStatsStoredBeforeFailureEvent(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	var p *Producer
	ready := make(chan struct{})
	failures := make(chan string, 1)
	events.Subscribe(bus, func(e events.ProducerFailed) {
		<-ready
		if st := p.Stats(); !st.Failed || st.Open {
			failures <- fmt.Sprintf("stats %+v not failed", st)
			return
		}
		failures <- ""
	})

	m := capture.NewMock()
	m.FramesFunc = func() ([]gocv.Mat, error) { return nil, errors.New("decoder crashed") }
	p = newTestProducer(t, m, WithEvents(bus))
	close(ready)

	if _, _, err := p.Poll(); err == nil {
		t.Fatal("expected a fault")
	}
	awaitEvent(t, failures, "ProducerFailed")
}

func TestWindowHelpers(t *testing.T) {
	w, err := NewWindow(10, 19)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if !w.Bounded() || w.FramesToProcess() != 9 {
		t.Errorf("window %+v: bounded=%t frames=%d", w, w.Bounded(), w.FramesToProcess())
	}
	if w.Exhausted(9) || !w.Exhausted(10) {
		t.Error("bounded window should be exhausted at exactly 10 deliveries")
	}

	u := Window{First: 5, Last: Unbounded}
	if u.Bounded() || u.FramesToProcess() != Unbounded || u.Exhausted(1<<62) {
		t.Errorf("unbounded window %+v misreports", u)
	}

	if _, err = NewWindow(3, 2); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("err = %v, want ErrInvalidWindow", err)
	}
}

func TestWatchdog(t *testing.T) {
	w := NewWatchdog(0)
	if w.Threshold() != DefaultEmptyFrameThreshold {
		t.Errorf("Threshold() = %d, want %d", w.Threshold(), DefaultEmptyFrameThreshold)
	}

	w = NewWatchdog(2)
	if err := w.Observe(true); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if err := w.Observe(false); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if w.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after a good frame", w.Count())
	}
	if err := w.Observe(true); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	var ie *IntegrityError
	if err := w.Observe(true); !errors.As(err, &ie) || ie.Kind != KindEmptyFrames {
		t.Errorf("err = %v, want IntegrityError{KindEmptyFrames}", err)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("other"), false},
		{ErrProducerFailed, true},
		{&FaultError{Op: "frames", Err: errors.New("x")}, true},
		{&IntegrityError{Kind: KindChannels}, true},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}
