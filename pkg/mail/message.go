// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"html"

	"gopkg.in/gomail.v2"
)

// SubjectPrefix is prepended to every outgoing subject line.
const SubjectPrefix = "[NekoMail] "

// lowPriority marks every message as bulk so clients do not surface it as urgent.
var lowPriority = map[string]string{
	"X-Priority":        "5 (Lowest)",
	"X-MSMail-Priority": "Low",
	"Importance":        "Low",
}

// Message is a rendered message ready for the relay.
type Message struct {
	FromAddress string
	FromName    string
	To          string
	Subject     string
	HTMLBody    string
}

// NewMessage builds the envelope for a validated request. The subject arrives
// HTML-escaped and is decoded here since mail headers are not HTML.
func NewMessage(fromAddress, fromName, to, escapedSubject, htmlBody string) *Message {
	return &Message{
		FromAddress: fromAddress,
		FromName:    fromName,
		To:          to,
		Subject:     SubjectPrefix + html.UnescapeString(escapedSubject),
		HTMLBody:    htmlBody,
	}
}

// Headers returns the header set written to the wire, without the body.
func (m *Message) Headers() map[string][]string {
	msg := m.toGomail()
	out := make(map[string][]string)
	for _, k := range []string{"From", "To", "Subject", "X-Priority", "X-MSMail-Priority", "Importance"} {
		out[k] = msg.GetHeader(k)
	}
	return out
}

func (m *Message) toGomail() *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.FromAddress, m.FromName)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	for k, v := range lowPriority {
		msg.SetHeader(k, v)
	}
	msg.SetBody("text/html", m.HTMLBody)
	return msg
}
