package dto

// Update is one inbound event delivered by the transport: a command, a
// free-text message, or the activation of a previously rendered button.
// Exactly one of Text or Callback is expected to be set.
type Update struct {
	OperatorID int64  `json:"operator_id" binding:"required" validate:"required"`
	ChatID     int64  `json:"chat_id" binding:"required" validate:"required"`
	MessageID  int64  `json:"message_id"`
	Text       string `json:"text"`
	Callback   string `json:"callback"`
}

// IsText reports whether the update carries a free-text message.
func (u Update) IsText() bool {
	return u.Callback == "" && u.Text != ""
}
