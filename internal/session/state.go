// ABOUTME: Connection state machine for producers and observers
// ABOUTME: Pure transition function from (state, event) to (state, effects)
package session

import "github.com/Deploy-u/Audio-Recording-System/internal/protocol"

// State is the lifecycle position of a connection
type State int

const (
	// Undetermined connections have sent nothing that classifies them
	Undetermined State = iota
	// Observer connections receive live frames and notifications
	Observer
	// Producing connections own an open container writer
	Producing
	// Finished is terminal; no further effects are produced
	Finished
)

func (s State) String() string {
	switch s {
	case Undetermined:
		return "undetermined"
	case Observer:
		return "observer"
	case Producing:
		return "producing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is something that happened on the connection
type Event interface{ isEvent() }

// TextMessage is a textual control message
type TextMessage struct{ Text string }

// BinaryMessage is one chunk of PCM audio in recording order
type BinaryMessage struct{ Data []byte }

// Closed reports that the transport terminated (close, error or timeout)
type Closed struct{}

func (TextMessage) isEvent()   {}
func (BinaryMessage) isEvent() {}
func (Closed) isEvent()        {}

// Effect is an action the session must carry out after a transition
type Effect interface{ isEffect() }

// RegisterObserver adds the connection to the broadcast registry
type RegisterObserver struct{}

// UnregisterObserver removes the connection from the broadcast registry
type UnregisterObserver struct{}

// OpenWriter creates the stream's container
type OpenWriter struct{}

// WriteChunk appends audio to the container
type WriteChunk struct{ Data []byte }

// BroadcastChunk relays audio to the observers
type BroadcastChunk struct{ Data []byte }

// FinalizeWriter completes the container
type FinalizeWriter struct{}

// NotifyStreamCompleted tells observers a finished stream exists
type NotifyStreamCompleted struct{}

func (RegisterObserver) isEffect()      {}
func (UnregisterObserver) isEffect()    {}
func (OpenWriter) isEffect()            {}
func (WriteChunk) isEffect()            {}
func (BroadcastChunk) isEffect()        {}
func (FinalizeWriter) isEffect()        {}
func (NotifyStreamCompleted) isEffect() {}

// Transition computes the next state and the effects to run. The mode is
// decided once: the first binary message makes a producer, the observer
// token makes an observer, and neither can be undone.
func Transition(s State, ev Event) (State, []Effect) {
	switch s {
	case Undetermined:
		switch ev := ev.(type) {
		case TextMessage:
			if ev.Text == protocol.ObserverToken {
				return Observer, []Effect{RegisterObserver{}}
			}
			return Undetermined, nil
		case BinaryMessage:
			return Producing, []Effect{OpenWriter{}, WriteChunk{Data: ev.Data}, BroadcastChunk{Data: ev.Data}}
		case Closed:
			return Finished, nil
		}

	case Observer:
		// Binary frames from observers are ignored to tolerate misbehaving clients
		if _, ok := ev.(Closed); ok {
			return Finished, []Effect{UnregisterObserver{}}
		}
		return Observer, nil

	case Producing:
		switch ev := ev.(type) {
		case TextMessage:
			if ev.Text == protocol.EndOfStreamToken {
				return Finished, []Effect{FinalizeWriter{}, NotifyStreamCompleted{}}
			}
			return Producing, nil
		case BinaryMessage:
			return Producing, []Effect{WriteChunk{Data: ev.Data}, BroadcastChunk{Data: ev.Data}}
		case Closed:
			return Finished, []Effect{FinalizeWriter{}, NotifyStreamCompleted{}}
		}
	}

	return s, nil
}
