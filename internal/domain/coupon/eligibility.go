package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Eligibility checks per-user redemption limits against the usage log.
type Eligibility struct {
	usages UsageLog
	now    func() time.Time
}

// NewEligibility creates an Eligibility checker backed by the given log.
func NewEligibility(usages UsageLog) *Eligibility {
	return &Eligibility{usages: usages, now: time.Now}
}

// Check returns nil when the user may redeem the coupon now.
//
// one_time: any previous redemption disqualifies forever (ErrAlreadyUsed).
// one_per_day: disqualified only while strictly less than 24 hours have
// elapsed since the most recent redemption (*RateLimitedError).
func (e *Eligibility) Check(ctx context.Context, userID int64, c *Coupon) error {
	last, err := e.usages.LastUsage(ctx, userID, c.ID)
	if err != nil {
		return errors.Wrap(err, "lookup coupon usage")
	}
	if last == nil {
		return nil
	}

	switch c.UsageLimit {
	case UsageOneTime:
		return ErrAlreadyUsed
	case UsageOnePerDay:
		next := last.UsedAt.Add(24 * time.Hour)
		if e.now().Before(next) {
			return &RateLimitedError{NextEligibleAt: next}
		}
		return nil
	default:
		return errors.Errorf("unsupported usage limit: %q", c.UsageLimit)
	}
}
