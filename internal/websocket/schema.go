package websocket

import (
	"encoding/json"

	"github.com/stemsi/ieltsmock-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave        Action = "autosave"
	ActionHighlights      Action = "highlights"
	ActionNavigate        Action = "navigate"
	ActionFullscreenEnter Action = "fullscreen_enter"
	ActionFullscreenExit  Action = "fullscreen_exit"
	ActionBlur            Action = "blur"
	ActionFocus           Action = "focus"
	ActionHidden          Action = "hidden"
	ActionVisible         Action = "visible"
	ActionSubmit          Action = "submit"
	ActionPing            Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AutosaveRequest carries a partial answer map for one section.
type AutosaveRequest struct {
	Section model.Section        `json:"section"`
	Answers model.SectionAnswers `json:"answers"`
}

// HighlightsRequest replaces the attempt's highlight list.
type HighlightsRequest struct {
	Highlights []model.Highlight `json:"highlights"`
}

// NavigateRequest moves the client to another section.
type NavigateRequest struct {
	Section model.Section `json:"section"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady     Event = "ready"
	EventSaved     Event = "saved"
	EventNavigated Event = "navigated"
	EventBlocked   Event = "blocked"
	EventUnblocked Event = "unblocked"
	EventTick      Event = "tick"
	EventTimeUp    Event = "time_up"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// ResponsePayload is the envelope for every server event.
type ResponsePayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ReadyData is sent once the stream is attached to an attempt.
type ReadyData struct {
	AttemptID string        `json:"attempt_id"`
	Remaining int           `json:"remaining"`
	Blocked   bool          `json:"blocked"`
	Section   model.Section `json:"section"`
}

// TickData reports the clock.
type TickData struct {
	Remaining int  `json:"remaining"`
	Warning   bool `json:"warning"`
}

// SavedData acknowledges an autosave or highlight update.
type SavedData struct {
	Section   model.Section `json:"section,omitempty"`
	LastSaved interface{}   `json:"last_saved,omitempty"`
}

// SubmittedData reports the sealed attempt.
type SubmittedData struct {
	Duration         int  `json:"duration"`
	AlreadySubmitted bool `json:"already_submitted"`
}

// ErrorData describes a rejected action.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
