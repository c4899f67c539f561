package safety

import (
	"fmt"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
)

const transcriptChars = 4000

// conversationBlock renders what a model needs to know about the thread.
func conversationBlock(sc autosend.SendContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Channel: %s\n", sc.Channel)
	if sc.Lead.Name != "" || sc.Lead.Company != "" {
		fmt.Fprintf(&b, "Lead: %s", sc.Lead.Name)
		if sc.Lead.Company != "" {
			fmt.Fprintf(&b, " (%s)", sc.Lead.Company)
		}
		b.WriteString("\n")
	}
	if sc.Conversation.Sentiment != "" {
		fmt.Fprintf(&b, "Detected sentiment: %s\n", sc.Conversation.Sentiment)
	}
	if sc.Conversation.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", sc.Conversation.Subject)
	}
	if t := strings.TrimSpace(sc.Conversation.Transcript); t != "" {
		fmt.Fprintf(&b, "\nEarlier conversation:\n%s\n", tail(t, transcriptChars))
	}
	fmt.Fprintf(&b, "\nLatest inbound message:\n%s\n", strings.TrimSpace(sc.Conversation.LatestInbound))

	return b.String()
}

// tail keeps the most recent part of a long transcript.
func tail(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return "..." + string(r[len(r)-limit:])
}
