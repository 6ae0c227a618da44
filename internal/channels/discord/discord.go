// Package discord connects the bot to the Discord gateway with discordgo.
// Guild messages from humans are published to the bus; replies are sent as
// message replies in the originating channel.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
	"github.com/nextlevelbuilder/joinbridge/internal/channels"
)

// ChannelName is the bus channel name for Discord messages.
const ChannelName = "discord"

// Intents are the gateway intents the bot needs to read guild commands.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

// Config holds the channel settings.
type Config struct {
	Token string
}

// replier is the subset of *discordgo.Session used for sending.
type replier interface {
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Channel is the Discord gateway connection.
type Channel struct {
	*channels.BaseChannel
	session *discordgo.Session
	sender  replier

	ctx context.Context
}

// New creates a Discord channel. The gateway connection opens on Start.
func New(cfg Config, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = Intents

	c := &Channel{
		BaseChannel: channels.NewBaseChannel(ChannelName, msgBus),
		session:     session,
		sender:      session,
		ctx:         context.Background(),
	}
	session.AddHandler(c.onReady)
	session.AddHandler(c.onMessageCreate)
	return c, nil
}

// Start opens the gateway connection.
func (c *Channel) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	return c.session.Close()
}

// Send delivers msg as a reply to msg.ReplyTo, or as a plain message when
// there is nothing to reply to.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.ReplyTo == "" {
		_, err := c.sender.ChannelMessageSend(msg.ChatID, msg.Content)
		return err
	}
	ref := &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
	_, err := c.sender.ChannelMessageSendReply(msg.ChatID, msg.Content, ref)
	return err
}

func (c *Channel) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord bot logged in", "username", r.User.Username, "user_id", r.User.ID, "guilds", len(r.Guilds))
}

func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := toInbound(m)
	if !ok {
		return
	}
	if !c.Bus().PublishInbound(c.ctx, msg) {
		slog.Warn("discord message dropped: shutting down", "message_id", msg.MessageID)
	}
}

// toInbound converts a gateway event. Bot authors and direct messages are
// not forwarded.
func toInbound(m *discordgo.MessageCreate) (bus.InboundMessage, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return bus.InboundMessage{}, false
	}
	if m.Author.Bot || m.GuildID == "" {
		return bus.InboundMessage{}, false
	}
	return bus.InboundMessage{
		Channel:    ChannelName,
		MessageID:  m.ID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		ChatID:     m.ChannelID,
		GuildID:    m.GuildID,
		Content:    m.Content,
		FromBot:    m.Author.Bot,
	}, true
}
