package bus

// InboundMessage is a chat message received by a channel.
type InboundMessage struct {
	Channel    string // channel name, e.g. "discord"
	MessageID  string
	SenderID   string
	SenderName string
	ChatID     string // where replies go (Discord channel ID)
	GuildID    string // "" for direct messages
	Content    string
	FromBot    bool
}

// OutboundMessage is a reply to deliver through a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	ReplyTo string // message ID being answered, optional
	Content string
}
