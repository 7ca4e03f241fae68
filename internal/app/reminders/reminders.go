// Package reminders runs the scheduled job that turns upcoming appointments
// into reminder notifications.
package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clinidesk/clinidesk/internal/services"
	"github.com/clinidesk/clinidesk/pkg/logger"
)

const defaultWindow = 24 * time.Hour

// Job periodically scans for appointments starting inside the reminder window
// and sends each patient a reminder notification once.
type Job struct {
	appointments *services.AppointmentService
	window       time.Duration
	cron         *cron.Cron
	log          *zap.Logger
}

// NewJob constructs the reminder job. A non-positive window falls back to 24h.
func NewJob(appointments *services.AppointmentService, window time.Duration) (*Job, error) {
	if appointments == nil {
		return nil, errors.New("reminders: appointment service is required")
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Job{
		appointments: appointments,
		window:       window,
		log:          logger.WithModule("reminders"),
	}, nil
}

// Start schedules the job with the supplied cron expression and begins
// running it in the background.
func (j *Job) Start(schedule string) error {
	if j.cron != nil {
		return errors.New("reminders: already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	}); err != nil {
		return err
	}

	j.cron = c
	c.Start()
	j.log.Info("reminder job started", zap.String("schedule", schedule), zap.Duration("window", j.window))
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}

// RunOnce performs a single scan-and-send pass and returns the number of
// reminders sent. Failures on individual appointments are logged and skipped
// so one bad record cannot starve the rest.
func (j *Job) RunOnce(ctx context.Context) int {
	due, err := j.appointments.DueForReminder(ctx, j.window)
	if err != nil {
		j.log.Error("reminder scan failed", zap.Error(err))
		return 0
	}

	sent := 0
	for i := range due {
		if err := j.appointments.SendReminder(ctx, &due[i]); err != nil {
			j.log.Warn("reminder skipped",
				zap.String("appointment_id", due[i].ID), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		j.log.Info("reminders sent", zap.Int("count", sent))
	}
	return sent
}
