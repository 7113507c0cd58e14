package services

import "github.com/sirupsen/logrus"

// Button is one quick-reply option attached to an outbound message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// InboundMessage is an incoming message normalized away from transport
// details. Handlers build one from the webhook payload and hand it to the
// conversation engine.
type InboundMessage struct {
	From       string `json:"from"`        // sender chat address, e.g. "+5215550001111"
	ChannelID  string `json:"channel_id"`  // bot number that received the message
	Text       string `json:"text"`        // message body as typed
	QuotedText string `json:"quoted_text"` // body of the quoted message when replying
	MessageSID string `json:"message_sid"`
}

// Messenger sends messages to a chat address. channelID selects which bot
// number the message goes out from; implementations fall back to their
// configured default when it is empty.
type Messenger interface {
	SendText(channelID, to, text string) error
	SendButtons(channelID, to, text string, buttons []Button) error
}

// ConsoleMessenger logs outbound messages instead of delivering them. It
// backs local development without Twilio credentials, where conversations
// run through the test webhook.
type ConsoleMessenger struct{}

// SendText logs the message
func (ConsoleMessenger) SendText(channelID, to, text string) error {
	logrus.Infof("📤 [console] to=%s channel=%s\n%s", to, channelID, text)
	return nil
}

// SendButtons logs the message and its button titles
func (ConsoleMessenger) SendButtons(channelID, to, text string, buttons []Button) error {
	titles := make([]string, 0, len(buttons))
	for _, b := range buttons {
		titles = append(titles, b.Title)
	}
	logrus.Infof("📤 [console] to=%s channel=%s buttons=%v\n%s", to, channelID, titles, text)
	return nil
}
