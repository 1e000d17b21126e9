package broadcast

import (
	"context"
	"errors"
	"time"

	"tg-relaybot/internal/gateway"
	"tg-relaybot/internal/logger"
	"tg-relaybot/internal/models"
)

// UserSource supplies the recipient snapshot and the cleanup primitive
// for deleted accounts.
type UserSource interface {
	ListAllUsers() ([]models.UserRecord, error)
	DeleteUser(userID int64) error
}

// Reporter receives progress updates and the final summary, typically by
// editing a status message in the invoking admin's chat. Reporter errors
// are swallowed; progress is best effort.
type Reporter interface {
	Progress(ctx context.Context, progress Progress) error
	Final(ctx context.Context, summary Summary) error
}

// Options tunes delivery pacing.
type Options struct {
	// SendDelay is inserted after every successful send to stay under
	// the platform rate ceiling.
	SendDelay time.Duration
	// RateLimitCooldown is the wait before the single retry when the
	// platform reports a rate limit and suggests no retry-after.
	RateLimitCooldown time.Duration
	// ProgressBatchSize is how many recipients are processed between
	// progress reports.
	ProgressBatchSize int
}

// Progress is a snapshot of a running broadcast.
type Progress struct {
	Done      int
	Total     int
	Success   int
	Blocked   int
	Deleted   int
	Failed    int
	Elapsed   time.Duration
	Remaining time.Duration
}

// Summary is the final account of a completed broadcast.
type Summary struct {
	Total   int
	Success int
	Blocked int
	Deleted int
	Failed  int
	Elapsed time.Duration
}

// SuccessRate returns the delivered percentage of the snapshot.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// delivery-rate ratings
const (
	RatingExcellent      = "Excellent"
	RatingGood           = "Good"
	RatingNeedsAttention = "Needs Attention"
)

// Rating returns the qualitative delivery-rate rating.
func (s Summary) Rating() string {
	rate := s.SuccessRate()
	switch {
	case rate >= 90:
		return RatingExcellent
	case rate >= 75:
		return RatingGood
	default:
		return RatingNeedsAttention
	}
}

// Engine fans a single message out to the entire registered user
// population, one recipient at a time.
type Engine struct {
	Gateway gateway.Sender
	Users   UserSource
	Opts    Options
}

// Run executes one broadcast over a snapshot of the user list taken at
// the start; users registering mid-run are not included. The run is
// strictly sequential and cannot be cancelled once started; it always
// finishes the snapshot and reports the final summary.
func (e *Engine) Run(ctx context.Context, content gateway.Content, reporter Reporter) (Summary, error) {
	users, err := e.Users.ListAllUsers()
	if err != nil {
		return Summary{}, err
	}

	start := time.Now()
	summary := Summary{Total: len(users)}
	done := 0

	for _, user := range users {
		err := e.deliver(ctx, user.ID, content)
		switch {
		case err == nil:
			summary.Success++
			time.Sleep(e.Opts.SendDelay)
		case errors.Is(err, gateway.ErrBlocked):
			summary.Blocked++
		case errors.Is(err, gateway.ErrDeleted):
			summary.Deleted++
			if err := e.Users.DeleteUser(user.ID); err != nil {
				logger.Errorf("Failed to remove deleted user %d: %v", user.ID, err)
			} else {
				logger.Infof("Removed deleted user %d from database", user.ID)
			}
		default:
			summary.Failed++
			logger.Warningf("Broadcast delivery to %d failed: %v", user.ID, err)
		}

		done++
		if e.Opts.ProgressBatchSize > 0 && done%e.Opts.ProgressBatchSize == 0 {
			elapsed := time.Since(start)
			if err := reporter.Progress(ctx, progressOf(summary, done, elapsed)); err != nil {
				logger.Warningf("Could not update progress message: %v", err)
			}
		}
	}

	summary.Elapsed = time.Since(start)
	if err := reporter.Final(ctx, summary); err != nil {
		logger.Errorf("Could not deliver final broadcast summary: %v", err)
	}

	logger.Infof("Broadcast completed: %d/%d successful deliveries", summary.Success, summary.Total)
	return summary, nil
}

// deliver sends the content to one recipient, retrying exactly once after
// a rate-limit cool-down. A bounded loop, so the retry-count invariant is
// visible here rather than hidden in recursion.
func (e *Engine) deliver(ctx context.Context, chatID int64, content gateway.Content) error {
	var err error
	for attempt := 0; attempt <= 1; attempt++ {
		err = e.send(ctx, chatID, content)

		var rateLimited *gateway.RateLimitedError
		if errors.As(err, &rateLimited) && attempt == 0 {
			wait := e.Opts.RateLimitCooldown
			if rateLimited.RetryAfter > 0 {
				wait = rateLimited.RetryAfter
			}
			logger.Warningf("Rate limit hit for %d, waiting %s", chatID, wait)
			time.Sleep(wait)
			continue
		}
		break
	}
	return err
}

// send dispatches by content kind; unrecognized kinds fall back to a
// platform-side forward of the original message.
func (e *Engine) send(ctx context.Context, chatID int64, content gateway.Content) error {
	if content.Kind == gateway.KindOther {
		return e.Gateway.Forward(ctx, chatID, content.SourceChatID, content.MessageID)
	}
	return e.Gateway.Send(ctx, chatID, content)
}

func progressOf(s Summary, done int, elapsed time.Duration) Progress {
	progress := Progress{
		Done:    done,
		Total:   s.Total,
		Success: s.Success,
		Blocked: s.Blocked,
		Deleted: s.Deleted,
		Failed:  s.Failed,
		Elapsed: elapsed,
	}
	if done > 0 && s.Total > done {
		perRecipient := elapsed / time.Duration(done)
		progress.Remaining = perRecipient * time.Duration(s.Total-done)
	}
	return progress
}
