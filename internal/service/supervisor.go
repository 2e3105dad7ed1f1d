package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/Brewer/internal/brew"
	"github.com/CZERTAINLY/Brewer/internal/model"
)

// OpKind is an operation on the catalog.
type OpKind int

const (
	OpRefresh OpKind = iota
	OpInstall
	OpRemove
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpRefresh:
		return "refresh"
	case OpInstall:
		return "install"
	case OpRemove:
		return "remove"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is a request for the Supervisor. Name is the package of install and
// remove.
type Op struct {
	Kind OpKind
	Name string
}

// Supervisor serializes catalog operations and exports a snapshot after
// each one.
type Supervisor struct {
	catalog   *Catalog
	exporters []model.Exporter
	oneshot   bool
	scheduler gocron.Scheduler
	ops       chan Op
	stopOnce  sync.Once
	stopped   chan struct{}
}

func NewSupervisor(catalog *Catalog, exporters ...model.Exporter) *Supervisor {
	return &Supervisor{
		catalog:   catalog,
		exporters: exporters,
		ops:       make(chan Op, 1),
		stopped:   make(chan struct{}),
	}
}

// SupervisorFromConfig creates a supervisor for cfg.Service. Timer mode
// schedules update and refresh, manual mode refreshes once.
func SupervisorFromConfig(ctx context.Context, cfg model.Service, client *brew.Client) (*Supervisor, error) {
	switch cfg.Mode {
	case model.ServiceModeManual, "", model.ServiceModeTimer:
	default:
		return nil, fmt.Errorf("unsupported service mode %q", cfg.Mode)
	}
	if cfg.Mode == model.ServiceModeTimer {
		if cfg.Schedule == nil {
			return nil, errors.New("timer mode failed: service.schedule is nil")
		}
		if err := cfg.Schedule.Validate(); err != nil {
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
	}

	exps, err := exporters(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing exporters: %w", err)
	}

	s := NewSupervisor(NewCatalog(client), exps...)
	if cfg.Mode != model.ServiceModeTimer {
		s.oneshot = true
		return s, nil
	}
	s.scheduler, err = newScheduler(ctx, *cfg.Schedule, func() { s.Trigger(Op{Kind: OpUpdate}) })
	if err != nil {
		s.closeExporters(ctx)
		return nil, fmt.Errorf("timer mode failed: %w", err)
	}
	return s, nil
}

// SetOneshot makes Do refresh once and return.
func (s *Supervisor) SetOneshot(oneshot bool) *Supervisor {
	s.oneshot = oneshot
	return s
}

// Catalog returns the supervised catalog.
func (s *Supervisor) Catalog() *Catalog {
	return s.catalog
}

// Trigger asks the event loop to perform op. It blocks until the loop takes
// the request or stops.
func (s *Supervisor) Trigger(op Op) {
	select {
	case s.ops <- op:
	case <-s.stopped:
	}
}

// Do runs the supervisor event loop.
//
// Oneshot (manual) mode performs a single refresh, exports it and returns
// the first error. Otherwise it performs triggered operations until ctx is
// cancelled, errors are only logged.
//
// Shutdown order: stop accepting ops, scheduler, exporters.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "oneshot", s.oneshot)

	defer s.closeExporters(ctx)

	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			err := s.scheduler.Shutdown()
			if err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}
	defer s.stopOnce.Do(func() { close(s.stopped) })

	if s.oneshot {
		return s.handle(ctx, Op{Kind: OpRefresh})
	}
	// the first tick of a timer may be far away
	if s.scheduler != nil {
		if err := s.handle(ctx, Op{Kind: OpRefresh}); err != nil {
			slog.ErrorContext(ctx, "initial refresh failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-s.ops:
			if err := s.handle(ctx, op); err != nil {
				slog.ErrorContext(ctx, "operation failed", "op", op.Kind.String(), "name", op.Name, "error", err)
			}
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, op Op) error {
	slog.DebugContext(ctx, "handling operation", "op", op.Kind.String(), "name", op.Name)
	var err error
	switch op.Kind {
	case OpRefresh:
		err = s.catalog.Refresh(ctx)
	case OpInstall:
		_, err = s.catalog.Add(ctx, op.Name)
	case OpRemove:
		_, err = s.catalog.RemoveByName(ctx, op.Name)
	case OpUpdate:
		var out string
		out, err = s.catalog.Update(ctx)
		slog.InfoContext(ctx, "package manager updated", "output", out)
		if err == nil {
			err = s.catalog.Refresh(ctx)
		}
	default:
		err = fmt.Errorf("unsupported operation %s", op.Kind)
	}
	if err != nil {
		return err
	}
	return s.export(ctx)
}

func (s *Supervisor) export(ctx context.Context) error {
	raw, err := s.catalog.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("serializing snapshot: %w", err)
	}
	var errs []error
	for _, e := range s.exporters {
		if err := e.Export(ctx, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) closeExporters(ctx context.Context) {
	for _, e := range s.exporters {
		if closer, ok := e.(model.ExportCloser); ok {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "closing exporter have failed", "error", err)
			}
		}
	}
}

func newScheduler(ctx context.Context, cfg model.Schedule, startFunc func()) (gocron.Scheduler, error) {
	var job gocron.JobDefinition
	if cfg.Cron != "" {
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "scheduling", "cron", cfg.Cron)
	} else {
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		job = gocron.DurationJob(d)
		slog.DebugContext(ctx, "scheduling", "duration", d.String())
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(job, gocron.NewTask(startFunc))
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
