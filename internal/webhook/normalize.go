package webhook

import "github.com/calltrail/calltrail/internal/database/models"

// normalized is the canonical pair a raw provider event type maps to.
type normalized struct {
	State models.CallState
	Type  models.EventType
}

// eventTable maps the provider's raw event-type vocabulary to the
// canonical taxonomy. DTMF, playback, and recording events carry no
// lifecycle state of their own; they annotate the call without advancing
// it.
var eventTable = map[string]normalized{
	"call.initiated":           {models.StateInitiated, models.EventCallInitiated},
	"call.ringing":             {models.StateInitiated, models.EventCallInitiated},
	"call.answered":            {models.StateAnswered, models.EventCallAnswered},
	"call.bridged":             {models.StateBridged, models.EventCallBridged},
	"call.hangup":              {models.StateEnded, models.EventCallEnded},
	"call.completed":           {models.StateEnded, models.EventCallEnded},
	"call.machine.detected":    {models.StateAnswered, models.EventCallAnswered},
	"call.recording.available": {models.StateUnknown, models.EventRecordingAvailable},
	"call.recording.saved":     {models.StateUnknown, models.EventRecordingAvailable},
	"call.playback.completed":  {models.StateUnknown, models.EventPlaybackComplete},
	"call.dtmf.received":       {models.StateUnknown, models.EventDTMF},
}

// Normalize maps a raw provider event-type string to its canonical
// (CallState, EventType) pair. Unknown raw types normalize to
// (unknown, unknown): they are still recorded for forensic completeness
// but never advance the aggregate's state.
func Normalize(rawEventType string) (models.CallState, models.EventType) {
	if n, ok := eventTable[rawEventType]; ok {
		return n.State, n.Type
	}
	return models.StateUnknown, models.EventUnknown
}
