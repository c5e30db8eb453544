package chats

// Message is a single conversation turn. It is a value type that copies
// cheaply.
type Message struct {
	Role    Role
	Sender  string
	Content string
	Model   string // Serving model for assistant replies, when known.
}

// NewMessage creates a message with the given role, sender, and text.
func NewMessage(r Role, sender, text string) Message {
	return Message{Role: r, Sender: sender, Content: text}
}

// SystemMessage is shorthand for a system prompt message.
func SystemMessage(text string) Message { return NewMessage(System, "system", text) }

// UserMessage is shorthand for a user message.
func UserMessage(text string) Message { return NewMessage(User, "user", text) }
