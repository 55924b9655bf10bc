// Package handlers wires gateway events to the command set and the voice
// resilience supervisors.
package handlers

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/latoulicious/Melodine/internal/commands"
	"github.com/latoulicious/Melodine/pkg/player"
)

// Handlers routes gateway events for one bot instance.
type Handlers struct {
	prefix   string
	cmds     *commands.Commands
	registry *player.Registry
	log      *logrus.Entry
}

// New creates the event handlers.
func New(prefix string, cmds *commands.Commands, registry *player.Registry, log *logrus.Entry) *Handlers {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handlers{
		prefix:   prefix,
		cmds:     cmds,
		registry: registry,
		log:      log.WithField("component", "handlers"),
	}
}

// Register attaches all handlers to the session.
func (h *Handlers) Register(s *discordgo.Session) {
	s.AddHandler(h.MessageCreate)
	s.AddHandler(h.InteractionCreate)
	s.AddHandler(h.VoiceStateUpdate)
}

// MessageCreate dispatches prefix commands.
func (h *Handlers) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore all messages created by the bot itself
	if m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID == "" || !strings.HasPrefix(m.Content, h.prefix) {
		return
	}

	args := strings.Fields(strings.TrimPrefix(m.Content, h.prefix))
	if len(args) == 0 {
		return
	}
	command := strings.ToLower(args[0])
	args = args[1:]

	switch command {
	case "play", "p":
		h.cmds.Play(s, m, args)
	case "join":
		h.cmds.Join(s, m)
	case "leave":
		h.cmds.Leave(s, m)
	case "skip":
		h.cmds.Skip(s, m)
	case "stop":
		h.cmds.Stop(s, m)
	case "pause":
		h.cmds.Pause(s, m)
	case "resume":
		h.cmds.Resume(s, m)
	case "restart", "replay":
		h.cmds.Restart(s, m)
	case "volume", "vol":
		h.cmds.Volume(s, m, args)
	case "queue", "q":
		h.cmds.Queue(s, m)
	case "nowplaying", "np":
		h.cmds.NowPlaying(s, m)
	case "remove":
		h.cmds.Remove(s, m, args)
	case "clear":
		h.cmds.Clear(s, m)
	case "panel":
		h.cmds.Panel(s, m)
	case "setemoji":
		h.cmds.SetEmoji(s, m, args)
	case "help":
		h.cmds.Help(s, m)
	}
}

// InteractionCreate dispatches control-panel button presses.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	h.cmds.HandleButton(s, i)
}
