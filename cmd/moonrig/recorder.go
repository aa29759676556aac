package main

import (
	"context"
	"time"

	"github.com/nerrad567/moonrig/internal/infrastructure/influxdb"
	"github.com/nerrad567/moonrig/internal/infrastructure/logging"
	"github.com/nerrad567/moonrig/internal/infrastructure/mqtt"
	"github.com/nerrad567/moonrig/internal/journal"
	"github.com/nerrad567/moonrig/internal/motion"
	"github.com/nerrad567/moonrig/internal/thermal"
)

// recorder fans driver events out to the configured sinks: the SQLite
// command journal, InfluxDB telemetry, and MQTT announcements. Any sink
// may be nil. Recording is best effort; a failed write logs a warning
// and never propagates into the command that triggered it.
type recorder struct {
	instance string
	log      *logging.Logger

	journal journal.Repository
	influx  *influxdb.Client
	mqtt    *mqtt.Client
}

func newRecorder(instance string, log *logging.Logger) *recorder {
	return &recorder{instance: instance, log: log}
}

// motionAnnouncement is the JSON payload published per motion event.
type motionAnnouncement struct {
	Op        string  `json:"op"`
	Command   string  `json:"command,omitempty"`
	Outcome   string  `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
	Error     string  `json:"error,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp string  `json:"timestamp"`
}

// thermalAnnouncement is the JSON payload published per thermal event.
type thermalAnnouncement struct {
	Op        string  `json:"op"`
	Command   string  `json:"command,omitempty"`
	Outcome   string  `json:"outcome"`
	Target    float64 `json:"target"`
	Detail    string  `json:"detail,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// ObserveMotion implements motion.Observer. Rejections and failures are
// journalled and announced but never written to the telemetry series:
// the motion_event measurement records what the toolhead actually did.
func (r *recorder) ObserveMotion(ctx context.Context, event motion.Event) {
	r.journalEntry(ctx, journal.Entry{
		Category: journal.CategoryMotion,
		Command:  commandName(event.Op, event.Script),
		Outcome:  event.Outcome,
		Detail:   event.Detail,
		Err:      errText(event.Err),
	})
	if r.influx != nil && event.Outcome == motion.OutcomeSent {
		r.influx.WriteMotionEvent(r.instance, event.Op,
			event.Target.X, event.Target.Y, event.Target.Z, event.Duration.Seconds())
	}
	if r.mqtt != nil {
		ann := motionAnnouncement{
			Op:        event.Op,
			Command:   event.Script,
			Outcome:   event.Outcome,
			Detail:    event.Detail,
			Error:     errText(event.Err),
			X:         event.Target.X,
			Y:         event.Target.Y,
			Z:         event.Target.Z,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.mqtt.PublishMotion(ann); err != nil {
			r.log.Warn("mqtt motion announcement failed", "op", event.Op, "error", err)
		}
	}
}

// ObserveThermal implements half of thermal.Observer.
func (r *recorder) ObserveThermal(ctx context.Context, event thermal.Event) {
	r.journalEntry(ctx, journal.Entry{
		Category: journal.CategoryThermal,
		Command:  commandName(event.Op, event.Script),
		Outcome:  event.Outcome,
		Detail:   event.Detail,
		Err:      errText(event.Err),
	})
	if r.mqtt != nil {
		ann := thermalAnnouncement{
			Op:        event.Op,
			Command:   event.Script,
			Outcome:   event.Outcome,
			Target:    event.Target,
			Detail:    event.Detail,
			Error:     errText(event.Err),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.mqtt.PublishThermal(ann); err != nil {
			r.log.Warn("mqtt thermal announcement failed", "op", event.Op, "error", err)
		}
	}
}

// ObserveSample implements the other half of thermal.Observer.
// Temperature samples feed the telemetry series only, never the
// journal: a wait loop polling once a second would bury the command
// history.
func (r *recorder) ObserveSample(_ context.Context, sample thermal.Sample) {
	if r.influx == nil {
		return
	}
	target := 0.0
	if sample.HasTarget {
		target = sample.Target
	}
	r.influx.WriteTemperature(r.instance, sample.Heater, sample.Current, target)
}

// recordSystem journals a command outside the drivers, such as a
// firmware restart.
func (r *recorder) recordSystem(ctx context.Context, command, outcome, detail string, err error) {
	r.journalEntry(ctx, journal.Entry{
		Category: journal.CategorySystem,
		Command:  command,
		Outcome:  outcome,
		Detail:   detail,
		Err:      errText(err),
	})
}

func (r *recorder) journalEntry(ctx context.Context, entry journal.Entry) {
	if r.journal == nil {
		return
	}
	if _, err := r.journal.Record(ctx, entry); err != nil {
		r.log.Warn("journal write failed", "category", entry.Category, "error", err)
	}
}

// commandName picks the journal command column: the issued G-code when
// any was built, the operation name for commands refused before
// traffic.
func commandName(op, script string) string {
	if script != "" {
		return script
	}
	return op
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
