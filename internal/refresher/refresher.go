package refresher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultBuffer is how close to expiry a token may get before a sweep
// refreshes it.
const DefaultBuffer = 30 * time.Minute

// TokenService is the slice of the connector the refresher drives. It allows
// dependency injection for testing and decouples the refresher from the
// token store.
type TokenService interface {
	RefreshIfExpiring(ctx context.Context, buffer time.Duration) (bool, error)
}

// Runner refreshes the stored OAuth token on a cron schedule so long-lived
// automations never hit an expired access token mid-run.
type Runner struct {
	logger   *log.Logger
	service  TokenService
	buffer   time.Duration
	schedule string
	cron     *cron.Cron
}

// New creates a runner. The schedule is a standard 5-field cron expression
// (minute, hour, day-of-month, month, day-of-week).
func New(logger *log.Logger, service TokenService, schedule string, buffer time.Duration) (*Runner, error) {
	if logger == nil {
		logger = log.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	return &Runner{
		logger:   logger,
		service:  service,
		buffer:   buffer,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(parser)),
	}, nil
}

// Start begins the sweep schedule.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.Sweep); err != nil {
		return fmt.Errorf("schedule refresh sweep: %w", err)
	}
	r.cron.Start()
	r.logger.Printf("refresher: started, schedule=%q buffer=%s", r.schedule, r.buffer)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Printf("refresher: stopped")
}

// Sweep refreshes the stored token if it is close to expiry. A failed sweep
// only logs: the next API call will refresh on demand, and the next sweep
// tries again.
func (r *Runner) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	refreshed, err := r.service.RefreshIfExpiring(ctx, r.buffer)
	if err != nil {
		r.logger.Printf("refresher: sweep failed: %v", err)
		return
	}
	if refreshed {
		r.logger.Printf("refresher: token refreshed ahead of expiry")
	}
}
