// Package chat defines the normalized chat message contract shared by all
// backend adapters. Provider wire formats are private to each adapter;
// everything above them speaks in Messages.
package chat

// Role values for Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a chat-style request or response.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemText concatenates the content of all system messages in list order.
func SystemText(messages []Message) string {
	return joinRole(messages, RoleSystem)
}

// UserText concatenates the content of all user messages in list order.
func UserText(messages []Message) string {
	return joinRole(messages, RoleUser)
}

func joinRole(messages []Message, role string) string {
	var out string
	for _, m := range messages {
		if m.Role == role {
			out += m.Content
		}
	}
	return out
}

// Conversation builds the canonical two-message request used by the
// completion contract: an optional system message followed by the user
// prompt.
func Conversation(system, prompt string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: prompt},
	}
}
