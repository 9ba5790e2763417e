package broadcast

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer records frames; accept=false simulates a closed or full transport
type fakePeer struct {
	id     string
	accept bool
	onSend func()

	mu     sync.Mutex
	frames []Frame
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, accept: true}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(f Frame) bool {
	if p.onSend != nil {
		p.onSend()
	}
	if !p.accept {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return true
}

func (p *fakePeer) received() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Frame(nil), p.frames...)
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	a := newFakePeer("a")

	assert.True(t, r.Register(a))
	assert.False(t, r.Register(a))
	assert.Equal(t, 1, r.Len())

	stats := r.Broadcast(Frame{Kind: Binary, Data: []byte{1}})
	assert.Equal(t, Stats{Delivered: 1}, stats)
	assert.Len(t, a.received(), 1, "a duplicate registration must not double deliver")
}

func TestUnregisterAbsent(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Unregister("missing"))

	r.Register(newFakePeer("a"))
	assert.True(t, r.Unregister("a"))
	assert.False(t, r.Unregister("a"))
	assert.Zero(t, r.Len())
}

func TestBroadcastNoPeers(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, Stats{}, r.Broadcast(Frame{Kind: Binary, Data: []byte{1, 2}}))
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")
	b.accept = false

	var dropped []string
	r.OnDrop = func(id string, kind Kind) {
		dropped = append(dropped, fmt.Sprintf("%s:%s", id, kind))
	}

	for _, p := range []*fakePeer{a, b, c} {
		r.Register(p)
	}

	stats := r.Broadcast(Frame{Kind: Binary, Data: []byte("pcm")})
	assert.Equal(t, Stats{Delivered: 2, Dropped: 1}, stats)
	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
	assert.Len(t, c.received(), 1)
	assert.Equal(t, []string{"b:binary"}, dropped)
}

func TestUnregisterDuringBroadcast(t *testing.T) {
	r := NewRegistry()
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")

	// Whichever peer is offered the frame first removes a from the registry
	var once sync.Once
	leave := func() { once.Do(func() { r.Unregister("a") }) }
	a.onSend, b.onSend, c.onSend = leave, leave, leave

	for _, p := range []*fakePeer{a, b, c} {
		r.Register(p)
	}

	r.Broadcast(Frame{Kind: Binary, Data: []byte("in-flight")})

	assert.Len(t, b.received(), 1)
	assert.Len(t, c.received(), 1)
	assert.Equal(t, []string{"b", "c"}, r.IDs())

	r.Broadcast(Frame{Kind: Binary, Data: []byte("next")})
	assert.LessOrEqual(t, len(a.received()), 1, "a must not receive frames after leaving")
	assert.Len(t, b.received(), 2)
}

func TestBroadcastPreservesPerPeerOrder(t *testing.T) {
	r := NewRegistry()
	peers := []*fakePeer{newFakePeer("a"), newFakePeer("b")}
	for _, p := range peers {
		r.Register(p)
	}

	for i := 0; i < 50; i++ {
		r.Broadcast(Frame{Kind: Binary, Data: []byte{byte(i)}})
	}

	for _, p := range peers {
		frames := p.received()
		require.Len(t, frames, 50)
		for i, f := range frames {
			assert.Equal(t, byte(i), f.Data[0])
		}
	}
}

func TestLateRegistrationSeesOnlyLaterFrames(t *testing.T) {
	r := NewRegistry()
	early := newFakePeer("early")
	r.Register(early)

	r.Broadcast(Frame{Kind: Binary, Data: []byte{1}})
	r.Broadcast(Frame{Kind: Binary, Data: []byte{2}})

	late := newFakePeer("late")
	r.Register(late)
	r.Broadcast(Frame{Kind: Binary, Data: []byte{3}})

	assert.Len(t, early.received(), 3)
	require.Len(t, late.received(), 1)
	assert.Equal(t, []byte{3}, late.received()[0].Data)
}

func TestConcurrentMembershipChanges(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := newFakePeer(fmt.Sprintf("peer-%d", i))
			r.Register(p)
			r.Broadcast(Frame{Kind: Text, Data: []byte("hello")})
			r.Unregister(p.ID())
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.Len())
}
