package voice

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DiscordTransport implements Transport on a discordgo session. It also hands
// the raw voice connection to the audio sink, which streams opus frames over
// the same connection the supervisor keeps alive.
type DiscordTransport struct {
	session *discordgo.Session
	log     *logrus.Entry

	readyTimeout time.Duration
}

// NewDiscordTransport wraps a discordgo session.
func NewDiscordTransport(session *discordgo.Session, log *logrus.Entry) *DiscordTransport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DiscordTransport{
		session:      session,
		log:          log,
		readyTimeout: 10 * time.Second,
	}
}

// Connect joins the channel and waits for the connection to become ready.
func (t *DiscordTransport) Connect(guildID, channelID string) error {
	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return errors.Wrap(err, "voice join failed")
	}

	timeout := time.After(t.readyTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			_ = vc.Disconnect()
			return errors.New("voice connection timed out waiting for ready")
		case <-ticker.C:
			if vc.Ready {
				t.log.WithFields(logrus.Fields{
					"guild_id":   guildID,
					"channel_id": channelID,
				}).Debug("Voice connection ready")
				return nil
			}
		}
	}
}

// MoveTo switches to another channel in the same guild. discordgo reuses the
// existing connection for a same-guild join.
func (t *DiscordTransport) MoveTo(guildID, channelID string) error {
	return t.Connect(guildID, channelID)
}

// Disconnect drops the guild's voice connection if one exists.
func (t *DiscordTransport) Disconnect(guildID string) error {
	if vc := t.conn(guildID); vc != nil {
		return vc.Disconnect()
	}
	return nil
}

// Connected reports the channel the guild is joined to, if any.
func (t *DiscordTransport) Connected(guildID string) (string, bool) {
	vc := t.conn(guildID)
	if vc == nil || !vc.Ready {
		return "", false
	}
	return vc.ChannelID, true
}

// Conn exposes the raw voice connection for the audio sink.
func (t *DiscordTransport) Conn(guildID string) *discordgo.VoiceConnection {
	return t.conn(guildID)
}

func (t *DiscordTransport) conn(guildID string) *discordgo.VoiceConnection {
	t.session.RLock()
	defer t.session.RUnlock()
	return t.session.VoiceConnections[guildID]
}
