// Package scheduler provides scheduling logic for PlanLoom.
//
// It allows jobs (such as activity reminder notifications) to be
// scheduled using cron expressions or one-shot timestamps.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddOneTimeJob schedules a task to run once at the given time. The
// entry removes itself after running. Times in the past return an error.
func (s *Scheduler) AddOneTimeJob(at time.Time, task func()) error {
	if at.Before(time.Now()) {
		return fmt.Errorf("cannot schedule job in the past: %s", at)
	}
	expr := CronExprFromTime(at)
	var id cron.EntryID
	id, err := s.cron.AddFunc(expr, func() {
		task()
		s.cron.Remove(id)
	})
	return err
}

// CronExprFromTime converts a timestamp to the 5-field cron expression
// that first fires at that minute.
func CronExprFromTime(t time.Time) string {
	return fmt.Sprintf("%d %d %d %d *", t.Minute(), t.Hour(), t.Day(), int(t.Month()))
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
