package daemon

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// PeriodicRebuild schedules a recurring full rebuild sweep. The sweep just
// requests a build for every package; coalescing with watch-triggered
// builds happens in the scheduler like for any other request.
type PeriodicRebuild struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func NewPeriodicRebuild(interval time.Duration, sweep func(), logger *slog.Logger) (*PeriodicRebuild, error) {
	if interval <= 0 {
		return nil, ferrors.ValidationError("rebuild interval must be > 0").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "create periodic scheduler").Build()
	}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(sweep),
		gocron.WithName("full-rebuild"),
	); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "create periodic rebuild job").Build()
	}

	return &PeriodicRebuild{scheduler: s, logger: logger}, nil
}

func (p *PeriodicRebuild) Start() {
	p.logger.Info("Periodic full rebuild enabled")
	p.scheduler.Start()
}

func (p *PeriodicRebuild) Stop() error {
	return p.scheduler.Shutdown()
}
