package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/ewhitaker/larder/internal/model"
)

func eventLine(ev *model.NotificationEvent) string {
	if ev.Detail != "" {
		return ev.Detail
	}
	return ev.Subject
}

// renderEvent builds the single-event (immediate) message.
func renderEvent(ev *model.NotificationEvent) Message {
	var subject string
	switch ev.Type {
	case model.NotifLowStock:
		subject = fmt.Sprintf("Low stock: %s", ev.Subject)
	case model.NotifSuggestionResponse:
		subject = fmt.Sprintf("Suggestion reviewed: %s", ev.Subject)
	default:
		subject = ev.Subject
	}
	line := eventLine(ev)
	return Message{
		Subject: subject,
		Text:    line,
		HTML:    fmt.Sprintf("<p>%s</p>", html.EscapeString(line)),
	}
}

// renderDigest batches several events into one message.
func renderDigest(events []*model.NotificationEvent, cadence model.Frequency) Message {
	label := "Daily"
	if cadence == model.FreqWeekly {
		label = "Weekly"
	}

	var text, htmlBody strings.Builder
	fmt.Fprintf(&text, "%s household update (%d items):\n\n", label, len(events))
	htmlBody.WriteString("<ul>")
	for _, ev := range events {
		line := eventLine(ev)
		fmt.Fprintf(&text, "- %s\n", line)
		fmt.Fprintf(&htmlBody, "<li>%s</li>", html.EscapeString(line))
	}
	htmlBody.WriteString("</ul>")

	return Message{
		Subject: fmt.Sprintf("%s household update", label),
		Text:    text.String(),
		HTML:    htmlBody.String(),
	}
}
