// Package session models one WebSocket connection of the ingest server.
//
// A connection starts Undetermined. The observer token turns it into an
// Observer that receives live frames; the first binary message turns it into
// a producer whose frames are written to a WAV container and relayed to every
// observer. On close (or the end-of-stream token) the container is finalized
// exactly once and observers are told a new stream exists.
//
// Transition is a pure function so the protocol can be tested without any
// I/O; Session executes the resulting effects against its collaborators.
package session
