package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Melodine/pkg/voice"
)

const resolveTimeout = 30 * time.Second

// Play resolves the query and enqueues the result, joining the requester's
// voice channel first when the bot is not connected yet.
func (c *Commands) Play(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		c.sendEmbed(s, m.ChannelID, "❌ Usage Error", "Please provide a URL or search query.", colorRed)
		return
	}

	if err := c.ensureVoice(s, m); err != nil {
		c.sendEmbed(s, m.ChannelID, "❌ Voice Error", err.Error(), colorRed)
		return
	}

	query := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	track, err := c.resolver.Resolve(ctx, query)
	if err != nil {
		c.log.WithError(err).WithField("query", query).Warn("Resolve failed")
		c.sendEmbed(s, m.ChannelID, "❌ Error", "Could not find anything playable for that query.", colorRed)
		return
	}
	track.RequesterID = m.Author.ID
	track.ReplyChannelID = m.ChannelID

	session := c.registry.Get(m.GuildID).Session
	session.Enqueue(track)

	position := len(session.QueueItems())
	if position == 0 {
		// Already advanced to current.
		return
	}
	c.sendEmbed(s, m.ChannelID, "🎵 Song Added",
		fmt.Sprintf("✅ Added **%s** to queue (Position: %d)", track.Title, position), colorGreen)
}

// ensureVoice makes sure the guild has a live voice connection, joining the
// requester's channel (and remembering it) when there is none.
func (c *Commands) ensureVoice(s *discordgo.Session, m *discordgo.MessageCreate) error {
	sv := c.supervisorFor(m.GuildID)
	if sv == nil {
		return fmt.Errorf("voice is not available")
	}
	if sv.State() == voice.StateConnected && sv.Desired() != "" {
		return nil
	}

	channelID, ok := userVoiceChannel(s, m.GuildID, m.Author.ID)
	if !ok {
		// Fall back to the guild's stored channel.
		if gs, err := c.store.Get(m.GuildID); err == nil && gs.VoiceChannelID != "" {
			channelID = gs.VoiceChannelID
		} else {
			return fmt.Errorf("join a voice channel first, or use the join command")
		}
	}

	if err := sv.ManualJoin(channelID); err != nil {
		return fmt.Errorf("could not join the voice channel")
	}
	if err := c.store.SetVoiceChannel(m.GuildID, channelID); err != nil {
		c.log.WithError(err).Warn("Failed to persist voice channel")
	}
	return nil
}
