package commands

import (
	"github.com/bwmarrin/discordgo"
)

// Join connects to the requester's voice channel and remembers it as the
// guild's assigned endpoint.
func (c *Commands) Join(s *discordgo.Session, m *discordgo.MessageCreate) {
	channelID, ok := userVoiceChannel(s, m.GuildID, m.Author.ID)
	if !ok {
		c.sendEmbed(s, m.ChannelID, "❌ Voice Error", "Join a voice channel first.", colorRed)
		return
	}

	sv := c.supervisorFor(m.GuildID)
	if sv == nil {
		c.sendEmbed(s, m.ChannelID, "❌ Voice Error", "Voice is not available.", colorRed)
		return
	}
	if err := sv.ManualJoin(channelID); err != nil {
		c.sendEmbed(s, m.ChannelID, "❌ Voice Error", "Could not join the voice channel.", colorRed)
		return
	}

	if err := c.store.SetVoiceChannel(m.GuildID, channelID); err != nil {
		c.log.WithError(err).Warn("Failed to persist voice channel")
	}
	if err := c.store.SetAnnounceChannel(m.GuildID, m.ChannelID); err != nil {
		c.log.WithError(err).Warn("Failed to persist announce channel")
	}
	c.sendEmbed(s, m.ChannelID, "🔊 Joined", "Connected to your voice channel.", colorGreen)
}

// Leave disconnects on user request. The grace window keeps the supervisor
// from immediately reconnecting when the gateway echoes the disconnect.
func (c *Commands) Leave(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	_ = session.Stop()

	sv := c.supervisorFor(m.GuildID)
	if sv == nil {
		c.sendEmbed(s, m.ChannelID, "❌ Voice Error", "Voice is not available.", colorRed)
		return
	}
	if err := sv.ManualLeave(); err != nil {
		c.log.WithError(err).Warn("Voice disconnect failed")
	}
	c.sendEmbed(s, m.ChannelID, "👋 Left", "Disconnected from voice.", colorBlue)
}
