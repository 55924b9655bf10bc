package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Skip ends the current track and moves to the next queued one.
func (c *Commands) Skip(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	if err := session.Skip(); err != nil {
		c.sendEmbed(s, m.ChannelID, "🔇 Nothing Playing", "There is no track to skip.", colorGray)
		return
	}
	c.sendEmbed(s, m.ChannelID, "⏭️ Skipped", "Moving to the next track.", colorGreen)
}

// Stop halts playback. The queue survives unless configured otherwise, and the
// stopped track can be brought back with restart.
func (c *Commands) Stop(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	if err := session.Stop(); err != nil {
		c.sendEmbed(s, m.ChannelID, "🔇 Nothing Playing", "There is nothing to stop.", colorGray)
		return
	}
	c.sendEmbed(s, m.ChannelID, "⏹️ Stopped", "Playback stopped.", colorBlue)
}

// Pause pauses the current track.
func (c *Commands) Pause(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	if err := session.Pause(); err != nil {
		c.sendEmbed(s, m.ChannelID, "🔇 Nothing Playing", "There is nothing to pause.", colorGray)
		return
	}
	c.sendEmbed(s, m.ChannelID, "⏸️ Paused", "Playback paused.", colorBlue)
}

// Resume resumes a paused track, or starts the queue when idle.
func (c *Commands) Resume(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	if err := session.Resume(); err != nil {
		c.sendEmbed(s, m.ChannelID, "🔇 Nothing Queued", "There is nothing to resume.", colorGray)
		return
	}
	c.sendEmbed(s, m.ChannelID, "▶️ Resumed", "Playback resumed.", colorGreen)
}

// Restart replays the current track from the beginning, or the last one when
// nothing is playing.
func (c *Commands) Restart(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	if err := session.Restart(); err != nil {
		c.sendEmbed(s, m.ChannelID, "🔇 Nothing To Restart", "No current or previous track to replay.", colorGray)
		return
	}
	c.sendEmbed(s, m.ChannelID, "🔁 Restarting", "Playing the track again.", colorGreen)
}

// Volume adjusts the guild volume. Accepts a relative step (+10, -10) or an
// absolute level; with no argument it reports the current level.
func (c *Commands) Volume(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	session := c.registry.Get(m.GuildID).Session

	if len(args) == 0 {
		c.sendEmbed(s, m.ChannelID, "🔊 Volume",
			fmt.Sprintf("Current volume: **%d%%**", session.Volume()), colorBlue)
		return
	}

	arg := strings.TrimSpace(args[0])
	n, err := strconv.Atoi(arg)
	if err != nil {
		c.sendEmbed(s, m.ChannelID, "❌ Usage Error",
			fmt.Sprintf("Volume must be a number between %d and %d, or a step like +10 / -10.",
				c.cfg.MinVolume, c.cfg.MaxVolume), colorRed)
		return
	}

	var level int
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		level = session.SetVolume(n)
	} else {
		level = session.SetVolume(n - session.Volume())
	}

	if err := c.store.SetVolume(m.GuildID, level); err != nil {
		c.log.WithError(err).Warn("Failed to persist volume")
	}
	c.sendEmbed(s, m.ChannelID, "🔊 Volume", fmt.Sprintf("Volume set to **%d%%**", level), colorGreen)
}

// Remove deletes the queued track at the given 1-based position.
func (c *Commands) Remove(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		c.sendEmbed(s, m.ChannelID, "❌ Usage Error", "Provide the queue position to remove.", colorRed)
		return
	}
	pos, err := strconv.Atoi(args[0])
	if err != nil || pos < 1 {
		c.sendEmbed(s, m.ChannelID, "❌ Usage Error", "Queue position must be a positive number.", colorRed)
		return
	}

	session := c.registry.Get(m.GuildID).Session
	t, err := session.Remove(pos - 1)
	if err != nil {
		c.sendEmbed(s, m.ChannelID, "❌ Error", "No track at that position.", colorRed)
		return
	}
	c.sendEmbed(s, m.ChannelID, "🗑️ Removed", fmt.Sprintf("Removed **%s** from the queue.", t.Title), colorGreen)
}

// Clear drops every pending track.
func (c *Commands) Clear(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := c.registry.Get(m.GuildID).Session
	session.ClearQueue()
	c.sendEmbed(s, m.ChannelID, "🧹 Queue Cleared", "Dropped all pending tracks.", colorBlue)
}
