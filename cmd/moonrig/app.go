package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/moonrig/internal/infrastructure/config"
	"github.com/nerrad567/moonrig/internal/infrastructure/database"
	"github.com/nerrad567/moonrig/internal/infrastructure/influxdb"
	"github.com/nerrad567/moonrig/internal/infrastructure/logging"
	"github.com/nerrad567/moonrig/internal/infrastructure/mqtt"
	"github.com/nerrad567/moonrig/internal/journal"
	"github.com/nerrad567/moonrig/internal/moonraker"
	"github.com/nerrad567/moonrig/internal/motion"
	"github.com/nerrad567/moonrig/internal/thermal"
	"github.com/nerrad567/moonrig/internal/toolhead"
)

// app wires the drivers and sinks for one command invocation.
//
// The printer client and both drivers are always built; they perform no
// network traffic until a command runs. The sinks (journal, InfluxDB,
// MQTT) are optional and best effort: one that fails to open logs a
// warning and stays nil, and the command proceeds without it. A full
// disk or a down broker must never stop a printer command.
type app struct {
	cfg *config.Config
	log *logging.Logger

	printer *moonraker.Client
	motion  *motion.Driver
	thermal *thermal.Driver

	db     *database.DB
	influx *influxdb.Client
	mqtt   *mqtt.Client

	recorder *recorder
}

// newApp loads configuration and builds the client, drivers and sinks.
func newApp(ctx context.Context, opts *cliOptions) (*app, error) {
	cfg, err := config.Load(opts.resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	client, err := moonraker.New(moonraker.Config{
		BaseURL:  cfg.Printer.BaseURL,
		APIKey:   cfg.Printer.APIKey,
		Username: cfg.Printer.Auth.Username,
		Password: cfg.Printer.Auth.Password,
		Timeout:  cfg.GetTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("building printer client: %w", err)
	}
	client.SetLogger(log)

	motionDrv, err := motion.New(client, motion.Config{
		ZSpeed:        cfg.Motion.ZSpeed,
		DefaultSpeed:  cfg.Motion.DefaultSpeed,
		MinSafeZ:      cfg.Motion.MinSafeZ,
		MaxZDelta:     cfg.Motion.MaxZDelta,
		ParkAfterHome: cfg.Motion.ParkAfterHome,
		Envelope:      envelopeFromConfig(cfg.Attachment),
	})
	if err != nil {
		return nil, fmt.Errorf("building motion driver: %w", err)
	}
	motionDrv.SetLogger(log)

	thermalDrv, err := thermal.New(client, thermal.Config{WaitTimeout: cfg.GetTimeout()})
	if err != nil {
		return nil, fmt.Errorf("building thermal driver: %w", err)
	}
	thermalDrv.SetLogger(log)

	a := &app{
		cfg:      cfg,
		log:      log,
		printer:  client,
		motion:   motionDrv,
		thermal:  thermalDrv,
		recorder: newRecorder(cfg.Printer.Instance, log),
	}
	a.openSinks(ctx)

	motionDrv.SetObserver(a.recorder)
	thermalDrv.SetObserver(a.recorder)
	return a, nil
}

// openSinks connects the optional sinks. Disabled sinks are skipped
// quietly; enabled sinks that fail to open log a warning and stay nil.
func (a *app) openSinks(ctx context.Context) {
	if a.cfg.Journal.Enabled {
		db, err := database.Open(database.Config{
			Path:        a.cfg.Journal.Path,
			WALMode:     a.cfg.Journal.WALMode,
			BusyTimeout: a.cfg.Journal.BusyTimeout,
		})
		if err != nil {
			a.log.Warn("journal unavailable", "error", err)
		} else if err := db.Migrate(ctx); err != nil {
			a.log.Warn("journal migration failed", "error", err)
			if cerr := db.Close(); cerr != nil {
				a.log.Warn("closing journal database", "error", cerr)
			}
		} else {
			a.db = db
			a.recorder.journal = journal.NewSQLiteRepository(db.DB)
		}
	}

	influxClient, err := influxdb.Connect(a.cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		a.log.Debug("influxdb disabled")
	case err != nil:
		a.log.Warn("influxdb unavailable", "error", err)
	default:
		influxClient.SetOnError(func(err error) {
			a.log.Warn("influxdb write failed", "error", err)
		})
		a.influx = influxClient
		a.recorder.influx = influxClient
	}

	mqttClient, err := mqtt.Connect(a.cfg.MQTT, a.cfg.Printer.Instance)
	switch {
	case errors.Is(err, mqtt.ErrDisabled):
		a.log.Debug("mqtt disabled")
	case err != nil:
		a.log.Warn("mqtt unavailable", "error", err)
	default:
		mqttClient.SetLogger(a.log)
		a.mqtt = mqttClient
		a.recorder.mqtt = mqttClient
	}
}

// Close releases the sinks in reverse order of acquisition. The client
// and drivers hold no connections of their own.
func (a *app) Close() {
	if a.mqtt != nil {
		if err := a.mqtt.Close(); err != nil {
			a.log.Warn("closing mqtt", "error", err)
		}
	}
	if a.influx != nil {
		a.influx.Flush()
		if err := a.influx.Close(); err != nil {
			a.log.Warn("closing influxdb", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing journal database", "error", err)
		}
	}
}

// ensureMotion initializes the motion driver once per invocation:
// readiness check, envelope validation, limits fetch.
func (a *app) ensureMotion(ctx context.Context) error {
	if a.motion.Initialized() {
		return nil
	}
	return a.motion.Initialize(ctx)
}

// speedOr returns the configured default travel speed when the flag or
// argument was left at zero.
func (a *app) speedOr(speed float64) float64 {
	if speed > 0 {
		return speed
	}
	return a.cfg.Motion.DefaultSpeed
}

// envelopeFromConfig maps the attachment offsets onto the motion
// validator's envelope type.
func envelopeFromConfig(att config.AttachmentConfig) toolhead.Envelope {
	return toolhead.Envelope{
		MinX: att.MinX, MaxX: att.MaxX,
		MinY: att.MinY, MaxY: att.MaxY,
		MinZ: att.MinZ, MaxZ: att.MaxZ,
	}
}
