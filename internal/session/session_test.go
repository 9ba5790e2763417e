package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Deploy-u/Audio-Recording-System/internal/broadcast"
	"github.com/Deploy-u/Audio-Recording-System/internal/protocol"
	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
	"github.com/Deploy-u/Audio-Recording-System/pkg/audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}

	tests := []struct {
		name    string
		from    State
		event   Event
		to      State
		effects []Effect
	}{
		{"observer token", Undetermined, TextMessage{Text: protocol.ObserverToken}, Observer, []Effect{RegisterObserver{}}},
		{"unknown text ignored", Undetermined, TextMessage{Text: "hello"}, Undetermined, nil},
		{"first binary starts stream", Undetermined, BinaryMessage{Data: pcm}, Producing,
			[]Effect{OpenWriter{}, WriteChunk{Data: pcm}, BroadcastChunk{Data: pcm}}},
		{"undetermined close", Undetermined, Closed{}, Finished, nil},
		{"observer binary ignored", Observer, BinaryMessage{Data: pcm}, Observer, nil},
		{"observer repeated token", Observer, TextMessage{Text: protocol.ObserverToken}, Observer, nil},
		{"observer close", Observer, Closed{}, Finished, []Effect{UnregisterObserver{}}},
		{"producer chunk", Producing, BinaryMessage{Data: pcm}, Producing,
			[]Effect{WriteChunk{Data: pcm}, BroadcastChunk{Data: pcm}}},
		{"producer observer token ignored", Producing, TextMessage{Text: protocol.ObserverToken}, Producing, nil},
		{"producer end of stream", Producing, TextMessage{Text: protocol.EndOfStreamToken}, Finished,
			[]Effect{FinalizeWriter{}, NotifyStreamCompleted{}}},
		{"producer close", Producing, Closed{}, Finished, []Effect{FinalizeWriter{}, NotifyStreamCompleted{}}},
		{"finished binary", Finished, BinaryMessage{Data: pcm}, Finished, nil},
		{"finished close", Finished, Closed{}, Finished, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, effects := Transition(tt.from, tt.event)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.effects, effects)
		})
	}
}

// fakeWriter is an in-memory container
type fakeWriter struct {
	path      string
	buf       bytes.Buffer
	finalized int
	writeErr  error
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.finalized > 0 {
		return 0, wav.ErrWriterClosed
	}
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *fakeWriter) Finalize() error {
	w.finalized++
	return nil
}

func (w *fakeWriter) Path() string        { return w.path }
func (w *fakeWriter) BytesWritten() int64 { return int64(w.buf.Len()) }

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) StreamCompleted(path string, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, path)
}

type peer struct {
	id     string
	mu     sync.Mutex
	frames []broadcast.Frame
}

func (p *peer) ID() string { return p.id }

func (p *peer) Send(f broadcast.Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return true
}

type harness struct {
	registry *broadcast.Registry
	notifier *fakeNotifier
	writers  []*fakeWriter
}

func newHarness() *harness {
	return &harness{registry: broadcast.NewRegistry(), notifier: &fakeNotifier{}}
}

func (h *harness) session(id string) *Session {
	return New(Config{
		ID:   id,
		Peer: &peer{id: id},
		Open: func() (Writer, error) {
			w := &fakeWriter{path: id + ".wav"}
			h.writers = append(h.writers, w)
			return w, nil
		},
		Hub:      h.registry,
		Notifier: h.notifier,
		Logger:   zerolog.Nop(),
	})
}

func TestProducerStreamLifecycle(t *testing.T) {
	h := newHarness()
	obs := &peer{id: "observer"}
	h.registry.Register(obs)

	s := h.session("producer")
	chunks := [][]byte{{1, 2}, {3, 4, 5}, {6}}
	for _, c := range chunks {
		require.NoError(t, s.Handle(BinaryMessage{Data: c}))
	}
	assert.Equal(t, Producing, s.State())
	assert.Equal(t, "producer.wav", s.StreamPath())
	assert.Equal(t, int64(6), s.BytesWritten())

	require.NoError(t, s.Handle(Closed{}))
	assert.Equal(t, Finished, s.State())

	require.Len(t, h.writers, 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, h.writers[0].buf.Bytes())
	assert.Equal(t, 1, h.writers[0].finalized)
	assert.Equal(t, []string{"producer.wav"}, h.notifier.events)

	require.Len(t, obs.frames, 3)
	for i, f := range obs.frames {
		assert.Equal(t, broadcast.Binary, f.Kind)
		assert.Equal(t, chunks[i], f.Data)
	}
}

func TestAtMostOneWriterPerConnection(t *testing.T) {
	h := newHarness()
	s := h.session("busy")

	for i := 0; i < 100; i++ {
		require.NoError(t, s.Handle(BinaryMessage{Data: []byte{byte(i)}}))
		require.NoError(t, s.Handle(TextMessage{Text: protocol.ObserverToken}))
	}
	require.NoError(t, s.Handle(TextMessage{Text: protocol.EndOfStreamToken}))
	require.NoError(t, s.Handle(BinaryMessage{Data: []byte{0xFF}}))
	require.NoError(t, s.Handle(Closed{}))

	assert.Len(t, h.writers, 1)
	assert.Equal(t, 1, s.WritersOpened())
	assert.Equal(t, 1, h.writers[0].finalized, "end of stream and close must finalize once")
	assert.Len(t, h.notifier.events, 1)
	assert.Zero(t, h.registry.Len(), "a producer never becomes an observer")
}

func TestObserverNeverCreatesFile(t *testing.T) {
	h := newHarness()
	s := h.session("dashboard")

	require.NoError(t, s.Handle(TextMessage{Text: protocol.ObserverToken}))
	assert.Equal(t, []string{"dashboard"}, h.registry.IDs())

	require.NoError(t, s.Handle(BinaryMessage{Data: []byte{1, 2, 3}}))
	require.NoError(t, s.Handle(Closed{}))

	assert.Empty(t, h.writers)
	assert.Empty(t, h.notifier.events)
	assert.Zero(t, h.registry.Len())
	assert.Equal(t, "", s.StreamPath())
}

func TestCloseWithoutDataCreatesNothing(t *testing.T) {
	h := newHarness()
	s := h.session("idle")

	require.NoError(t, s.Handle(TextMessage{Text: "ping"}))
	require.NoError(t, s.Handle(Closed{}))

	assert.Empty(t, h.writers)
	assert.Empty(t, h.notifier.events)
	assert.Equal(t, Finished, s.State())
}

func TestWriteFailureIsFatal(t *testing.T) {
	h := newHarness()
	obs := &peer{id: "observer"}
	h.registry.Register(obs)

	s := h.session("producer")
	require.NoError(t, s.Handle(BinaryMessage{Data: []byte{1, 2}}))

	diskFull := &wav.IOError{Op: "write", Path: "producer.wav", Err: errors.New("no space left on device")}
	h.writers[0].writeErr = diskFull

	err := s.Handle(BinaryMessage{Data: []byte{3, 4}})
	require.Error(t, err)
	var ioErr *wav.IOError
	assert.True(t, errors.As(err, &ioErr))
	assert.Len(t, obs.frames, 1, "a failed write stops the effect chain")

	// The caller closes the connection; partial data is finalized
	require.NoError(t, s.Handle(Closed{}))
	assert.Equal(t, []byte{1, 2}, h.writers[0].buf.Bytes())
	assert.Equal(t, 1, h.writers[0].finalized)
	assert.Len(t, h.notifier.events, 1)
}

func TestOpenFailureSendsNoNotification(t *testing.T) {
	h := newHarness()
	s := New(Config{
		ID:       "producer",
		Open:     func() (Writer, error) { return nil, errors.New("permission denied") },
		Hub:      h.registry,
		Notifier: h.notifier,
		Logger:   zerolog.Nop(),
	})

	err := s.Handle(BinaryMessage{Data: []byte{1}})
	assert.ErrorContains(t, err, "permission denied")

	require.NoError(t, s.Handle(Closed{}))
	assert.Empty(t, h.notifier.events)
}

func TestNoObserversDoesNotAffectRecording(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solo.wav")
	notifier := &fakeNotifier{}

	s := New(Config{
		ID:       "solo",
		Open:     func() (Writer, error) { return wav.Create(path, audio.LiveFormat) },
		Hub:      broadcast.NewRegistry(),
		Notifier: notifier,
		Logger:   zerolog.Nop(),
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Handle(BinaryMessage{Data: make([]byte, 3200)}))
	}
	require.NoError(t, s.Handle(Closed{}))

	info, err := wav.ReadFileInfo(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(9600), info.DataSize)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(wav.HeaderSize+9600), fi.Size())
	assert.Equal(t, []string{path}, notifier.events)
}

func TestHooks(t *testing.T) {
	var started, finished string
	var chunks int
	var finishedBytes int64

	s := New(Config{
		ID:   "hooked",
		Open: func() (Writer, error) { return &fakeWriter{path: "hooked.wav"}, nil },
		Hooks: Hooks{
			OnStreamStarted: func(_ *Session, path string) { started = path },
			OnChunk:         func(_ *Session, _ []byte) { chunks++ },
			OnStreamFinished: func(_ *Session, path string, n int64, err error) {
				finished = path
				finishedBytes = n
				assert.NoError(t, err)
			},
		},
		Logger: zerolog.Nop(),
	})

	require.NoError(t, s.Handle(BinaryMessage{Data: []byte{1, 2, 3}}))
	require.NoError(t, s.Handle(BinaryMessage{Data: []byte{4}}))
	require.NoError(t, s.Handle(Closed{}))

	assert.Equal(t, "hooked.wav", started)
	assert.Equal(t, 2, chunks)
	assert.Equal(t, "hooked.wav", finished)
	assert.Equal(t, int64(4), finishedBytes)
}
