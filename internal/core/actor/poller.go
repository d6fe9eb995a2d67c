package actor

import (
	"context"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const POLL_JOB_KEY = "poll"

// Poller asks the host to refresh its entities at a fixed interval.
type Poller struct {
	root     *actor.RootContext
	host     *actor.PID
	interval time.Duration
	sched    quartz.Scheduler
	logger   *zap.Logger
}

func NewPoller(root *actor.RootContext, host *actor.PID, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		root:     root,
		host:     host,
		interval: interval,
		logger:   logger.With(zap.String("component", "poller")),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	sched := quartz.NewStdScheduler()
	sched.Start(ctx)

	pollJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		p.root.Send(p.host, domain.PollRequest{})
		return true, nil
	})
	detail := quartz.NewJobDetail(pollJob, quartz.NewJobKey(POLL_JOB_KEY))
	if err := sched.ScheduleJob(detail, quartz.NewSimpleTrigger(p.interval)); err != nil {
		sched.Stop()
		return err
	}
	p.sched = sched
	p.logger.Debug("poller: started", zap.Duration("interval", p.interval))
	return nil
}

func (p *Poller) Stop(ctx context.Context) {
	if p.sched == nil {
		return
	}
	p.sched.Stop()
	p.sched.Wait(ctx)
	p.sched = nil
}
