package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latoulicious/Melodine/internal/bot"
	"github.com/latoulicious/Melodine/internal/config"
	"github.com/latoulicious/Melodine/pkg/mediacache"
	"github.com/latoulicious/Melodine/pkg/resolver"
	"github.com/latoulicious/Melodine/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := setupLogger(cfg.LogLevel)

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open settings store")
	}
	defer st.Close()

	res := resolver.New(log)

	cache, err := mediacache.New(mediacache.Config{
		Dir:                    cfg.CacheDir,
		MaxBytes:               cfg.CacheMaxBytes,
		MaxFiles:               cfg.CacheMaxFiles,
		MaxConcurrentDownloads: cfg.MaxConcurrentDownloads,
	}, res, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize media cache")
	}

	shutdown := make(chan struct{})
	var wg sync.WaitGroup

	// One bot instance per token, staggered so the gateway does not see a
	// burst of identifies from the same host.
	for i, token := range cfg.Tokens {
		if i > 0 {
			time.Sleep(cfg.StartDelay)
		}
		wg.Add(1)
		go func(index int, token string) {
			defer wg.Done()
			runBot(cfg, index, token, st, cache, res, log, shutdown)
		}(i, token)
	}

	log.WithField("instances", len(cfg.Tokens)).Info("All bots launched. Press CTRL-C to exit.")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info("Shutting down")
	close(shutdown)
	wg.Wait()
}

// runBot keeps one instance alive until shutdown, restarting it after a delay
// when startup fails.
func runBot(cfg *config.Config, index int, token string, st *store.Store, cache *mediacache.Cache, res *resolver.YouTubeResolver, log *logrus.Entry, shutdown <-chan struct{}) {
	blog := log.WithField("bot", index)

	for {
		b, err := bot.New(cfg, token, st, cache, res, blog)
		if err == nil {
			err = b.Start()
		}
		if err != nil {
			blog.WithError(err).Error("Bot failed to start")
			select {
			case <-shutdown:
				return
			case <-time.After(cfg.RestartDelay):
				continue
			}
		}

		<-shutdown
		b.Stop()
		return
	}
}

func setupLogger(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logrus.NewEntry(logger)
}
