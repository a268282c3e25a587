package server

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Message types understood by the router.
const (
	TypeDevicesIndex      = "devices.index"
	TypeDevicesStore      = "devices.store"
	TypeDevicesUpdate     = "devices.update"
	TypeDevicesDelete     = "devices.delete"
	TypeDevicesConnect    = "devices.connect"
	TypeDevicesDisconnect = "devices.disconnect"
	TypeValuesIndex       = "values.index"
	TypeValuesStore       = "values.store"
	TypeValuesUpdate      = "values.update"
	TypeValuesDelete      = "values.delete"
	TypeValuesOrphaned    = "values.orphaned"
)

// Envelope is the uniform message wrapper for requests, responses and
// broadcasts. The id is an integer correlation token: requests choose it,
// responses echo it, broadcasts carry a freshly generated one.
type Envelope struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// envelopeCounter issues broadcast envelope ids. Seeded with wall-clock
// millis so ids stay in the range earlier firmware generations produced,
// then strictly increasing within the process.
var envelopeCounter atomic.Int64

func init() {
	envelopeCounter.Store(time.Now().UnixMilli())
}

// nextEnvelopeID returns a fresh broadcast envelope id.
func nextEnvelopeID() int64 {
	return envelopeCounter.Add(1)
}

// encodeEnvelope marshals an envelope with an arbitrary data payload.
func encodeEnvelope(id int64, msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{ID: id, Type: msgType, Data: raw})
}
