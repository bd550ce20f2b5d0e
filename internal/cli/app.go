package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"solarcore/config"
	"solarcore/internal/api"
	"solarcore/internal/application"
	"solarcore/internal/catalog"
	"solarcore/internal/db"
	"solarcore/internal/events"
	"solarcore/internal/infra/audio"
	"solarcore/internal/infra/homeassistant"
	"solarcore/internal/infra/openai"
	"solarcore/internal/infra/pushover"
	"solarcore/internal/infra/speech"
	"solarcore/internal/infra/tuya"
	"solarcore/internal/store"
)

// app is the fully wired service graph shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	bus    *events.Bus

	rooms      *store.Rooms
	canonical  application.CanonicalStore
	writer     api.CanonicalWriter
	devices    *application.DeviceState
	security   *application.Security
	reconciler *application.Reconciler
	voice      *application.Voice
	assistant  *application.Assistant
	shutdown   *application.AutoShutdown
	alerts     *application.Alerts

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	gdb, err := db.Init(cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: gdb, bus: events.NewBus(logger)}
	a.closers = append(a.closers, func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	a.rooms = store.NewRooms(gdb)
	if err := a.selectBackend(); err != nil {
		a.Close()
		return nil, err
	}

	locks := application.NewRoomLocks()
	a.devices = application.NewDeviceState(a.rooms, a.canonical, a.bus, locks, logger)

	a.security, err = application.NewSecurity(ctx, store.NewSecurity(gdb), a.bus, application.SecurityConfig{
		AutoShutdown: cfg.Security.AutoShutdown,
		Countdown:    config.Duration(logger, "security.countdown", cfg.Security.Countdown, 10*time.Minute),
		Exceptions:   cfg.Security.Exceptions,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.reconciler = application.NewReconciler(a.rooms, a.canonical, locks, a.bus, application.ReconcileConfig{
		Cooldown: config.Duration(logger, "sync.cooldown", cfg.Sync.Cooldown, 5*time.Second),
		MaxRuns:  cfg.Sync.MaxRuns,
		Window:   config.Duration(logger, "sync.window", cfg.Sync.Window, time.Minute),
		Interval: config.Duration(logger, "sync.interval", cfg.Sync.Interval, 5*time.Minute),
	}, logger)

	commands, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("catalog loaded", "commands", commands.Len())

	a.voice = a.newVoice()
	dispatcher := application.NewDispatcher(a.devices, a.security, logger)
	a.assistant = application.NewAssistant(a.rooms, commands, application.NewInterpreter(), dispatcher, a.voice, logger)
	a.shutdown = application.NewAutoShutdown(a.rooms, a.devices, cfg.Account.ID, logger)

	var notifier application.Notifier = &application.NoopNotifier{}
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	}
	a.alerts = application.NewAlerts(notifier, cfg.Pushover.Workers, cfg.Pushover.QueueSize, logger)

	return a, nil
}

// selectBackend picks where canonical device records live. Only the sql
// backend accepts gateway webhook writes; the others are the gateway.
func (a *app) selectBackend() error {
	switch a.cfg.Sync.Backend {
	case "sql":
		c := store.NewCanonical(a.db)
		a.canonical = c
		a.writer = c
	case "tuya":
		a.canonical = tuya.NewClient(a.cfg.Tuya.ClientID, a.cfg.Tuya.Secret, a.cfg.Tuya.Region)
	case "homeassistant":
		a.canonical = homeassistant.NewClient(a.cfg.HomeAssistant.URL, a.cfg.HomeAssistant.Token)
	default:
		return fmt.Errorf("unknown sync backend %q: must be sql, tuya or homeassistant", a.cfg.Sync.Backend)
	}
	a.logger.Info("canonical backend selected", "backend", a.cfg.Sync.Backend)
	return nil
}

// newVoice prefers the cloud voice and keeps espeak as the fallback. Without
// either, replies are text only.
func (a *app) newVoice() *application.Voice {
	cfg := a.cfg

	var stt application.SpeechToText = &application.NoopSTT{}
	if cfg.OpenAI.APIKey != "" {
		stt = openai.NewWhisperClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Language)
	}

	var primary, fallback application.Synthesizer
	espeak := speech.NewEspeak(cfg.Speech.FallbackCommand, cfg.Speech.FallbackVoice)
	if espeak.Available() {
		fallback = espeak
	}

	if cfg.OpenAI.APIKey != "" {
		player, err := audio.NewPlayer()
		if err != nil {
			a.logger.Warn("cloud voice disabled", "error", err)
		} else {
			a.closers = append(a.closers, player.Close)
			primary = openai.NewSpeechClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.TTSModel, cfg.OpenAI.TTSVoice, player)
		}
	}
	if primary == nil {
		primary, fallback = fallback, nil
	}
	if primary == nil {
		primary = &application.NoopSynthesizer{}
	}

	return application.NewVoice(stt, primary, fallback, application.VoiceConfig{
		ListenTimeout:   config.Duration(a.logger, "speech.listen_timeout", cfg.Speech.ListenTimeout, 8*time.Second),
		FallbackRetries: cfg.Speech.FallbackRetries,
	}, a.logger)
}

func (a *app) audioSource() (application.AudioSource, bool) {
	switch a.cfg.Audio.Source {
	case "file":
		return audio.NewFileSource(a.cfg.Audio.FileDir, a.logger), true
	case "microphone":
		return audio.NewMicrophoneSource(a.cfg.Audio.WakeWord, a.cfg.Audio.SampleRate, a.logger), true
	case "none", "":
		return nil, false
	default:
		a.logger.Warn("unknown audio source, voice loop disabled", "source", a.cfg.Audio.Source)
		return nil, false
	}
}

func (a *app) handler() *api.Handler {
	return api.NewHandler(api.Deps{
		Rooms:      a.rooms,
		Devices:    a.devices,
		Reconciler: a.reconciler,
		Assistant:  a.assistant,
		Security:   a.security,
		Canonical:  a.writer,
		Bus:        a.bus,
		Logger:     a.logger,
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing", "error", err)
		}
	}
	a.closers = nil
}
