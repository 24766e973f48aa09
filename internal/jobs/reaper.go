package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/relay"
)

type Sweeper interface {
	Sweep(ctx context.Context) relay.SweepResult
}

// ReaperJob runs the liveness sweep on a fixed interval.
type ReaperJob struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewReaperJob(sweeper Sweeper, interval time.Duration) *ReaperJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReaperJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (j *ReaperJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("reaper job started")
}

// Stop ends the loop and cancels outstanding pings. Safe to call twice.
func (j *ReaperJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.cancel()
		j.wg.Wait()
		log.Info().Msg("reaper job stopped")
	})
}

func (j *ReaperJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ReaperJob) sweep() {
	res := j.sweeper.Sweep(j.ctx)

	logCount("connections", res.Terminated)
	logCount("pair codes", res.PairCodes)
	logCount("trust tokens", res.TrustTokens)
	log.Debug().Int("pinged", res.Pinged).Msg("liveness sweep done")
}

func logCount(name string, count int) {
	if count > 0 {
		log.Info().Int("count", count).Msgf("reaped %s", name)
	}
}
