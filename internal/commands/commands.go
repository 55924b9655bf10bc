// Package commands implements the prefix commands and the control panel. Each
// command resolves the guild's playback session through the registry and
// reports back with an embed.
package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/latoulicious/Melodine/internal/config"
	"github.com/latoulicious/Melodine/pkg/player"
	"github.com/latoulicious/Melodine/pkg/store"
	"github.com/latoulicious/Melodine/pkg/voice"
)

const (
	colorGreen = 0x00ff00
	colorRed   = 0xff0000
	colorBlue  = 0x7289DA
	colorGray  = 0x808080
)

// Commands carries the shared dependencies every command needs.
type Commands struct {
	cfg      *config.Config
	registry *player.Registry
	resolver player.Resolver
	store    *store.Store
	log      *logrus.Entry
}

// New creates the command set.
func New(cfg *config.Config, registry *player.Registry, resolver player.Resolver, st *store.Store, log *logrus.Entry) *Commands {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Commands{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		store:    st,
		log:      log.WithField("component", "commands"),
	}
}

// supervisorFor returns the guild's voice supervisor, if one is attached.
func (c *Commands) supervisorFor(guildID string) *voice.Supervisor {
	e := c.registry.Get(guildID)
	if sv, ok := e.Supervisor.(*voice.Supervisor); ok {
		return sv
	}
	return nil
}

func (c *Commands) sendEmbed(s *discordgo.Session, channelID, title, description string, color int) {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		c.log.WithError(err).WithField("channel_id", channelID).Warn("Failed to send embed")
	}
}

// userVoiceChannel finds the voice channel the invoking user sits in.
func userVoiceChannel(s *discordgo.Session, guildID, userID string) (string, bool) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		guild, err = s.Guild(guildID)
		if err != nil {
			return "", false
		}
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "?"
	}
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
