package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Panel button actions. Emoji defaults can be overridden per guild.
const (
	actionPlayPause = "playpause"
	actionSkip      = "skip"
	actionStop      = "stop"
	actionRestart   = "restart"
	actionVolDown   = "voldown"
	actionVolUp     = "volup"
)

const panelPrefix = "panel"

const volumeStep = 10

var defaultEmojis = map[string]string{
	actionPlayPause: "⏯️",
	actionSkip:      "⏭️",
	actionStop:      "⏹️",
	actionRestart:   "🔁",
	actionVolDown:   "🔉",
	actionVolUp:     "🔊",
}

var panelLayout = []string{
	actionPlayPause, actionSkip, actionStop, actionRestart, actionVolDown, actionVolUp,
}

// Panel posts the playback control panel. The buttons answer only to the user
// who opened the panel.
func (c *Commands) Panel(s *discordgo.Session, m *discordgo.MessageCreate) {
	emojis := map[string]string{}
	for k, v := range defaultEmojis {
		emojis[k] = v
	}
	if gs, err := c.store.Get(m.GuildID); err == nil {
		for action, emoji := range gs.EmojiOverrides {
			if _, known := emojis[action]; known && emoji != "" {
				emojis[action] = emoji
			}
		}
	}

	var buttons []discordgo.MessageComponent
	for _, action := range panelLayout {
		buttons = append(buttons, discordgo.Button{
			Style:    discordgo.SecondaryButton,
			Emoji:    &discordgo.ComponentEmoji{Name: emojis[action]},
			CustomID: fmt.Sprintf("%s:%s:%s", panelPrefix, action, m.Author.ID),
		})
	}

	_, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Embed: &discordgo.MessageEmbed{
			Title:       "🎛️ Playback Controls",
			Description: "Use the buttons below to control playback.",
			Color:       colorBlue,
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: buttons[:3]},
			discordgo.ActionsRow{Components: buttons[3:]},
		},
	})
	if err != nil {
		c.log.WithError(err).Warn("Failed to send control panel")
	}
}

// HandleButton dispatches a control-panel button press.
func (c *Commands) HandleButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	parts := strings.Split(i.MessageComponentData().CustomID, ":")
	if len(parts) != 3 || parts[0] != panelPrefix {
		return
	}
	action, ownerID := parts[1], parts[2]

	var userID string
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}
	if userID != ownerID {
		c.respond(s, i, "This panel belongs to someone else.")
		return
	}

	session := c.registry.Get(i.GuildID).Session
	switch action {
	case actionPlayPause:
		if session.Paused() {
			if err := session.Resume(); err != nil {
				c.respond(s, i, "Nothing to resume.")
				return
			}
			c.respond(s, i, "▶️ Resumed")
		} else {
			if err := session.Pause(); err != nil {
				c.respond(s, i, "Nothing is playing.")
				return
			}
			c.respond(s, i, "⏸️ Paused")
		}
	case actionSkip:
		if err := session.Skip(); err != nil {
			c.respond(s, i, "Nothing to skip.")
			return
		}
		c.respond(s, i, "⏭️ Skipped")
	case actionStop:
		if err := session.Stop(); err != nil {
			c.respond(s, i, "Nothing to stop.")
			return
		}
		c.respond(s, i, "⏹️ Stopped")
	case actionRestart:
		if err := session.Restart(); err != nil {
			c.respond(s, i, "Nothing to restart.")
			return
		}
		c.respond(s, i, "🔁 Restarting")
	case actionVolDown:
		level := session.SetVolume(-volumeStep)
		c.persistVolume(i.GuildID, level)
		c.respond(s, i, fmt.Sprintf("🔉 Volume: %d%%", level))
	case actionVolUp:
		level := session.SetVolume(volumeStep)
		c.persistVolume(i.GuildID, level)
		c.respond(s, i, fmt.Sprintf("🔊 Volume: %d%%", level))
	}
}

// SetEmoji records a per-guild emoji override for one panel action.
func (c *Commands) SetEmoji(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 2 {
		actions := strings.Join(panelLayout, ", ")
		c.sendEmbed(s, m.ChannelID, "❌ Usage Error",
			fmt.Sprintf("Usage: setemoji <action> <emoji>\nActions: %s", actions), colorRed)
		return
	}
	action := strings.ToLower(args[0])
	if _, known := defaultEmojis[action]; !known {
		c.sendEmbed(s, m.ChannelID, "❌ Usage Error",
			fmt.Sprintf("Unknown action %q.", action), colorRed)
		return
	}
	if err := c.store.SetEmoji(m.GuildID, action, args[1]); err != nil {
		c.log.WithError(err).Warn("Failed to persist emoji override")
		c.sendEmbed(s, m.ChannelID, "❌ Error", "Could not save the emoji override.", colorRed)
		return
	}
	c.sendEmbed(s, m.ChannelID, "✅ Emoji Set",
		fmt.Sprintf("Panel button **%s** now uses %s", action, args[1]), colorGreen)
}

func (c *Commands) persistVolume(guildID string, level int) {
	if err := c.store.SetVolume(guildID, level); err != nil {
		c.log.WithError(err).Warn("Failed to persist volume")
	}
}

func (c *Commands) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		c.log.WithError(err).Warn("Failed to respond to interaction")
	}
}
