// Package bot assembles one gateway session with its playback stack: the
// voice transport, the ffmpeg sink opener, the session registry with its
// resilience supervisors, and the command handlers.
package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/latoulicious/Melodine/internal/commands"
	"github.com/latoulicious/Melodine/internal/config"
	"github.com/latoulicious/Melodine/internal/handlers"
	"github.com/latoulicious/Melodine/pkg/audio"
	"github.com/latoulicious/Melodine/pkg/mediacache"
	"github.com/latoulicious/Melodine/pkg/player"
	"github.com/latoulicious/Melodine/pkg/store"
	"github.com/latoulicious/Melodine/pkg/voice"
)

// Bot is one running bot instance. The media cache, the settings store and the
// resolver are shared across instances; everything gateway-bound is owned
// here.
type Bot struct {
	cfg      *config.Config
	session  *discordgo.Session
	registry *player.Registry
	log      *logrus.Entry

	stopSweep context.CancelFunc
}

// New builds a bot instance around one token.
func New(cfg *config.Config, token string, st *store.Store, cache *mediacache.Cache, res player.Resolver, log *logrus.Entry) (*Bot, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "creating discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	transport := voice.NewDiscordTransport(session, log)
	sinks := audio.NewSinkOpener(transport, log)
	announcer := commands.NewAnnouncer(session, st, log)

	playerCfg := player.Config{
		RetryLimit:       cfg.RetryLimit,
		MinVolume:        cfg.MinVolume,
		MaxVolume:        cfg.MaxVolume,
		DefaultVolume:    cfg.DefaultVolume,
		FadeDuration:     cfg.FadeDuration,
		FadeSteps:        cfg.FadeSteps,
		ClearQueueOnStop: cfg.ClearQueueOnStop,
	}
	deps := player.Deps{
		Resolver:  res,
		Cache:     cache,
		Sinks:     sinks,
		Announcer: announcer,
	}

	svCfg := voice.Config{
		RejoinDelay: cfg.RejoinDelay,
		GraceWindow: cfg.ManualDisconnectGrace,
	}
	factory := func(guildID string, s *player.Session) player.Supervisor {
		return voice.NewSupervisor(guildID, svCfg, transport, s, log)
	}

	registry := player.NewRegistry(playerCfg, deps, st, factory, log)
	cmds := commands.New(cfg, registry, res, st, log)
	handlers.New(cfg.Prefix, cmds, registry, log).Register(session)

	return &Bot{
		cfg:      cfg,
		session:  session,
		registry: registry,
		log:      log,
	}, nil
}

// Start opens the gateway connection and starts the reconciliation sweeper.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "opening gateway connection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stopSweep = cancel
	go b.registry.RunSweeper(ctx, b.cfg.SweepInterval)

	if b.session.State.User != nil {
		b.log.WithField("user", b.session.State.User.Username).Info("Bot is now running")
	}
	return nil
}

// Stop shuts the instance down: sweeper first, then every session, then the
// gateway connection.
func (b *Bot) Stop() {
	if b.stopSweep != nil {
		b.stopSweep()
	}
	b.registry.Close()
	if err := b.session.Close(); err != nil {
		b.log.WithError(err).Warn("Error closing gateway connection")
	}
}
