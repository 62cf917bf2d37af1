package dto

// Button is one labeled action the transport renders under a message. The
// action string round-trips back unchanged as Update.Callback.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// View is the render-agnostic message model handed to the transport.
type View struct {
	Text     string     `json:"text"`
	Keyboard [][]Button `json:"keyboard,omitempty"`
}

// Outbound is a delivery instruction for the transport. When MessageID is
// non-zero the transport edits that message in place instead of sending a
// new one.
type Outbound struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id,omitempty"`
	View      View  `json:"view"`
}
