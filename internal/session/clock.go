package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"onenight-backend/internal/models"
)

// restartTimerLocked cancels the running ticker and starts a new one when the
// session is studying and unpaused. Bumping the generation makes any tick
// already in flight from the old ticker a no-op.
func (c *Controller) restartTimerLocked() {
	c.timerGen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	if c.phase != models.PhaseStudying || c.paused || c.tickInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopTimer = cancel
	go c.runTimer(ctx, c.timerGen, c.tickInterval)
}

func (c *Controller) runTimer(ctx context.Context, gen uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick(gen) {
				return
			}
		}
	}
}

// Tick advances the countdown by one second, exactly as the background
// ticker does. It does nothing unless the session is studying and unpaused.
func (c *Controller) Tick() {
	c.mu.Lock()
	gen := c.timerGen
	c.mu.Unlock()
	c.tick(gen)
}

// tick applies one second for timer generation gen and reports whether that
// timer should keep running.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	if gen != c.timerGen || c.phase != models.PhaseStudying || c.paused || c.remaining <= 0 {
		c.mu.Unlock()
		return false
	}

	c.remaining--
	events := []models.WSMessage{{Type: models.EventTick, Payload: models.Tick{
		RemainingSeconds: c.remaining,
		Clock:            models.FormatClock(c.remaining),
	}}}

	if c.remaining > 0 {
		c.mu.Unlock()
		c.publish(events...)
		return true
	}

	c.phase = models.PhaseFinished
	runID := c.runID
	c.restartTimerLocked()
	events = append(events, c.phaseEventLocked())
	c.mu.Unlock()

	c.publish(events...)
	c.logger.Info("study session finished", zap.String("run_id", runID.String()))
	c.metrics.SessionEnded(models.RunOutcomeFinished)
	c.finishRun(runID, models.RunOutcomeFinished, 0)
	return false
}
