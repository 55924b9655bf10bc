package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/latoulicious/Melodine/pkg/player"
	"github.com/latoulicious/Melodine/pkg/store"
)

// Announcer posts now-playing and failure notices. The guild's stored announce
// channel wins; the channel the track was requested from is the fallback.
type Announcer struct {
	session *discordgo.Session
	store   *store.Store
	log     *logrus.Entry
}

// NewAnnouncer creates an announcer bound to one gateway session.
func NewAnnouncer(session *discordgo.Session, st *store.Store, log *logrus.Entry) *Announcer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Announcer{
		session: session,
		store:   st,
		log:     log.WithField("component", "announcer"),
	}
}

// Announce posts the now-playing notice for a track.
func (a *Announcer) Announce(guildID string, t *player.Track) {
	channelID := a.channelFor(guildID, t)
	if channelID == "" {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: fmt.Sprintf("**%s**", t.Title),
		Color:       colorGreen,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if t.Duration > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Duration", Value: formatDuration(t.Duration), Inline: true,
		})
	}
	if t.RequesterID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Requested By", Value: fmt.Sprintf("<@%s>", t.RequesterID), Inline: true,
		})
	}

	if _, err := a.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		a.log.WithError(err).WithField("channel_id", channelID).Warn("Failed to announce track")
	}
}

// AnnounceFailure reports a track dropped after its retries ran out.
func (a *Announcer) AnnounceFailure(guildID string, t *player.Track, cause error) {
	channelID := a.channelFor(guildID, t)
	if channelID == "" {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "❌ Playback Failed",
		Description: fmt.Sprintf("Could not play **%s** after %d attempts.", t.Title, t.RetryCount+1),
		Color:       colorRed,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if _, err := a.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		a.log.WithError(err).WithField("channel_id", channelID).Warn("Failed to announce playback failure")
	}
}

func (a *Announcer) channelFor(guildID string, t *player.Track) string {
	if gs, err := a.store.Get(guildID); err == nil && gs.AnnounceChannelID != "" {
		return gs.AnnounceChannelID
	}
	return t.ReplyChannelID
}
