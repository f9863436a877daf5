package bot

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler drives the periodic sweeps: scheduled message deletions first,
// then captcha timeout sanctions.
type Scheduler struct {
	bot      *Bot
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(b *Bot, interval time.Duration) *Scheduler {
	return &Scheduler{bot: b, interval: interval, done: make(chan struct{})}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("sweep scheduler started")
}

// Stop terminates the sweep loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
	log.Info().Msg("sweep scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.bot.Destruct.Sweep()
			s.bot.Controller.SweepTimeouts(time.Now())
		case <-s.done:
			return
		}
	}
}
