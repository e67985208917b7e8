package runner

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/browser-agent/pkg/agent"
	"github.com/entrhq/browser-agent/pkg/logging"
	"github.com/entrhq/browser-agent/pkg/telemetry"
)

// FormatStep renders the one-line step log:
// "Step N | url=U | actions=a,b | next_goal=G | elapsed=E | tags=T".
func FormatStep(e agent.StepEvent, withTags bool) string {
	var b strings.Builder
	b.WriteString("Step ")
	b.WriteString(strconv.Itoa(e.Step))
	b.WriteString(" | url=")
	b.WriteString(orDash(e.URL))
	b.WriteString(" | actions=")
	b.WriteString(orDash(strings.Join(e.Actions, ",")))
	if goal := strings.TrimSpace(e.NextGoal); goal != "" {
		b.WriteString(" | next_goal=")
		b.WriteString(goal)
	}
	b.WriteString(" | elapsed=")
	b.WriteString(formatElapsed(e.Elapsed))
	if withTags {
		b.WriteString(" | tags=")
		b.WriteString(orDash(e.TagSummary))
	}
	return b.String()
}

// FormatAction renders the log line of one action:
// "Step N action I type target=T elapsed=E".
func FormatAction(e agent.StepEvent) string {
	return fmt.Sprintf("Step %d action %d %s target=%s elapsed=%s",
		e.Step, e.ActionIndex+1, e.ActionType, orDash(e.Target), formatElapsed(e.Elapsed))
}

func formatElapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// stepLogger logs step events and feeds step metrics.
type stepLogger struct {
	log      *logging.Logger
	metrics  *telemetry.Metrics
	details  bool
	withTags bool

	mu      sync.Mutex
	step    int
	elapsed time.Duration
	ok      bool
}

func (l *stepLogger) OnStep(e agent.StepEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Step != l.step {
		l.flushLocked()
		l.step, l.ok = e.Step, true
	}
	l.elapsed = e.Elapsed
	l.ok = l.ok && e.Success

	if e.ActionType != "" {
		l.metrics.RecordAction(e.ActionType, e.Success)
	}

	elapsed := zap.Duration("elapsed", e.Elapsed)
	if l.details && e.ActionIndex == 0 {
		l.log.Infow(FormatStep(e, l.withTags), zap.Int("step", e.Step), elapsed)
	}
	if e.ActionType == "" {
		return
	}
	fields := []any{
		zap.Int("step", e.Step),
		zap.String("action", e.ActionType),
		zap.String("target", e.Target),
		elapsed,
	}
	switch {
	case !e.Success:
		msg := fmt.Sprintf("Step %d action %d %s failed: %s", e.Step, e.ActionIndex+1, e.ActionType, e.Error)
		l.log.Warnw(msg, fields...)
	case l.details:
		l.log.Infow(FormatAction(e), fields...)
	default:
		l.log.Debugf("%s", FormatAction(e))
	}
}

// finish records the last step.
func (l *stepLogger) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

func (l *stepLogger) flushLocked() {
	if l.step == 0 {
		return
	}
	l.metrics.RecordStep(l.elapsed, l.ok)
	l.step = 0
}
