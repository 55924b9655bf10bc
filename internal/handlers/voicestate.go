package handlers

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Melodine/pkg/voice"
)

// VoiceStateUpdate watches the bot's own voice state. A transition to no
// channel is an involuntary-disconnect notification for the guild's
// supervisor; inside the manual-leave grace window the supervisor treats it as
// the echo of the user's leave.
func (h *Handlers) VoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || v.UserID != s.State.User.ID {
		return
	}
	if v.ChannelID != "" {
		return
	}

	entry, ok := h.registry.Peek(v.GuildID)
	if !ok || entry.Supervisor == nil {
		return
	}
	sv, ok := entry.Supervisor.(*voice.Supervisor)
	if !ok {
		return
	}

	h.log.WithField("guild_id", v.GuildID).Info("Bot voice state dropped")
	sv.HandleDisconnect()
}
