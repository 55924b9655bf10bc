package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Help lists the available commands.
func (c *Commands) Help(s *discordgo.Session, m *discordgo.MessageCreate) {
	p := c.cfg.Prefix
	embed := &discordgo.MessageEmbed{
		Title: "🎵 Commands",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: p + "play <url|query>", Value: "Queue a track from a URL or search query.", Inline: false},
			{Name: p + "join / " + p + "leave", Value: "Connect to or leave your voice channel.", Inline: false},
			{Name: p + "skip / " + p + "stop / " + p + "restart", Value: "Skip, stop, or replay the current track.", Inline: false},
			{Name: p + "pause / " + p + "resume", Value: "Pause or resume playback.", Inline: false},
			{Name: p + "volume [+n|-n|n]", Value: fmt.Sprintf("Show or set volume (%d-%d).", c.cfg.MinVolume, c.cfg.MaxVolume), Inline: false},
			{Name: p + "queue / " + p + "np", Value: "Show the queue or the current track.", Inline: false},
			{Name: p + "remove <n> / " + p + "clear", Value: "Remove one queued track, or all of them.", Inline: false},
			{Name: p + "panel", Value: "Open the button control panel.", Inline: false},
			{Name: p + "setemoji <action> <emoji>", Value: "Override a panel button emoji for this server.", Inline: false},
		},
	}
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		c.log.WithError(err).Warn("Failed to send help embed")
	}
}
