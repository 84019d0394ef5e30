package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"coachkit/internal/config"
	"coachkit/internal/features/automation"
	"coachkit/internal/features/sms"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pass schedules. The worker runs every minute so retry times are honored
// with minute granularity; the heavier passes run less often.
const (
	automationsSchedule = "*/15 * * * *"
	smsWorkerSchedule   = "* * * * *"
	remindersSchedule   = "*/5 * * * *"
)

// JobService owns the in-process scheduler for the three background passes
// and the run log around each execution. The same passes are also reachable
// through the cron HTTP endpoints for deployments that schedule externally;
// those set CRON_ENABLED=false.
type JobService interface {
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	RunJob(ctx context.Context, name string) (*JobRun, error)
	ListRuns(ctx context.Context, jobName string, limit int64) ([]JobRun, error)
}

type JobServiceImpl struct {
	repo              JobRunRepository
	automationService automation.AutomationService
	worker            sms.SmsWorker
	reminders         sms.ReminderService
	config            *config.Config
	logger            *zap.Logger

	scheduler *cron.Cron
	mu        sync.Mutex
}

func NewJobService(
	repo JobRunRepository,
	automationService automation.AutomationService,
	worker sms.SmsWorker,
	reminders sms.ReminderService,
	config *config.Config,
	logger *zap.Logger,
) JobService {
	return &JobServiceImpl{
		repo:              repo,
		automationService: automationService,
		worker:            worker,
		reminders:         reminders,
		config:            config,
		logger:            logger,
	}
}

func (s *JobServiceImpl) InitializeScheduler(ctx context.Context) error {
	if !s.config.CronEnabled {
		s.logger.Info("In-process scheduler disabled, expecting external cron")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = cron.New()

	register := func(name, spec string) error {
		_, err := s.scheduler.AddFunc(spec, func() {
			if _, err := s.RunJob(context.Background(), name); err != nil {
				s.logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", name, err)
		}
		return nil
	}

	if err := register(JobAutomations, automationsSchedule); err != nil {
		return err
	}
	if err := register(JobSmsWorker, smsWorkerSchedule); err != nil {
		return err
	}
	if err := register(JobSmsReminders, remindersSchedule); err != nil {
		return err
	}

	s.scheduler.Start()
	s.logger.Info("Job scheduler started",
		zap.String("automations", automationsSchedule),
		zap.String("sms_worker", smsWorkerSchedule),
		zap.String("sms_reminders", remindersSchedule))
	return nil
}

func (s *JobServiceImpl) StopScheduler() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
	return nil
}

func (s *JobServiceImpl) RunJob(ctx context.Context, name string) (*JobRun, error) {
	now := time.Now().UTC()
	run := &JobRun{
		JobName:   name,
		Status:    JobRunRunning,
		StartTime: now,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		s.logger.Error("Failed to record job start", zap.String("job", name), zap.Error(err))
	}

	var summary interface{}
	var runErr error
	switch name {
	case JobAutomations:
		summary = s.automationService.RunDue(ctx, now)
	case JobSmsWorker:
		summary = s.worker.RunPass(ctx, now)
	case JobSmsReminders:
		summary = s.reminders.RunReminderPass(ctx, now)
	default:
		runErr = fmt.Errorf("unknown job %q", name)
	}

	end := time.Now().UTC()
	status := JobRunSuccess
	detail := ""
	errMsg := ""
	if runErr != nil {
		status = JobRunFailed
		errMsg = runErr.Error()
	} else if raw, err := json.Marshal(summary); err == nil {
		detail = string(raw)
	}

	if !run.ID.IsZero() {
		if err := s.repo.Finish(ctx, run.ID, status, detail, errMsg, end); err != nil {
			s.logger.Error("Failed to record job end", zap.String("job", name), zap.Error(err))
		}
	}

	run.Status = status
	run.Detail = detail
	run.Error = errMsg
	run.EndTime = &end
	run.DurationMs = end.Sub(now).Milliseconds()
	return run, runErr
}

func (s *JobServiceImpl) ListRuns(ctx context.Context, jobName string, limit int64) ([]JobRun, error) {
	return s.repo.ListRecent(ctx, jobName, limit)
}
