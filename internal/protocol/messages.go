// ABOUTME: Micstream wire protocol definitions
// ABOUTME: Control tokens sent by clients and lifecycle events sent to observers
package protocol

import "encoding/json"

const (
	// ObserverToken registers a connection as a dashboard observer
	ObserverToken = "BROWSER_CLIENT"

	// EndOfStreamToken lets a producer finish its stream without disconnecting
	EndOfStreamToken = "END_OF_STREAM"
)

// Event types sent to observers
const (
	EventNewStream = "new_stream"
)

// Event is a lifecycle notification. It deliberately carries no file name;
// observers re-query the stream listing.
type Event struct {
	Type string `json:"type"`
}

// NewStreamEvent announces that a finished live stream is available
func NewStreamEvent() Event {
	return Event{Type: EventNewStream}
}

// Encode renders the event as a text frame payload
func (e Event) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		// Event only holds a string field
		panic(err)
	}
	return data
}

// ParseEvent decodes a text frame sent to observers
func ParseEvent(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// UploadResponse is returned by the recording upload endpoint
type UploadResponse struct {
	Success bool   `json:"success"`
	File    string `json:"file"`
}
