package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const queuePageSize = 10

// Queue shows the current track and the pending queue.
func (c *Commands) Queue(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	current := session.Current()
	items := session.QueueItems()

	if current == nil && len(items) == 0 {
		c.sendEmbed(s, m.ChannelID, "🔇 Queue Empty", "Nothing is playing and the queue is empty.", colorGray)
		return
	}

	var b strings.Builder
	if current != nil {
		fmt.Fprintf(&b, "**Now Playing:** %s (%s)\n\n", current.Title, formatDuration(current.Duration))
	}
	for i, t := range items {
		if i >= queuePageSize {
			fmt.Fprintf(&b, "…and %d more\n", len(items)-queuePageSize)
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, t.Title, formatDuration(t.Duration))
	}

	c.sendEmbed(s, m.ChannelID, "🎵 Queue", b.String(), colorBlue)
}

// NowPlaying shows details of the current track.
func (c *Commands) NowPlaying(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	current := session.Current()
	if current == nil {
		c.sendEmbed(s, m.ChannelID, "🔇 Nothing Playing", "No track is currently playing.", colorGray)
		return
	}

	state := "Playing"
	if session.Paused() {
		state = "Paused"
	}
	embed := &discordgo.MessageEmbed{
		Title: "🎵 Now Playing",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Title", Value: current.Title, Inline: false},
			{Name: "Duration", Value: formatDuration(current.Duration), Inline: true},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", session.Volume()), Inline: true},
			{Name: "State", Value: state, Inline: true},
		},
	}
	if current.RequesterID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Requested By", Value: fmt.Sprintf("<@%s>", current.RequesterID), Inline: true,
		})
	}
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		c.log.WithError(err).Warn("Failed to send now-playing embed")
	}
}
