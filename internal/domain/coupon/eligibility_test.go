package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUsageLog struct {
	last *Usage
	err  error
}

func (m *mockUsageLog) LastUsage(context.Context, int64, int64) (*Usage, error) {
	return m.last, m.err
}

func eligibilityAt(log *mockUsageLog, now time.Time) *Eligibility {
	e := NewEligibility(log)
	e.now = func() time.Time { return now }
	return e
}

func TestCheck_NeverUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := eligibilityAt(&mockUsageLog{}, now)

	c := testCoupon("20", "200.00", "0")
	require.NoError(t, e.Check(context.Background(), 1, c))
}

func TestCheck_OneTime_AlreadyUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Years-old usage still disqualifies a one_time coupon.
	log := &mockUsageLog{last: &Usage{
		UserID:   1,
		CouponID: 1,
		Limit:    UsageOneTime,
		UsedAt:   now.AddDate(-2, 0, 0),
	}}
	e := eligibilityAt(log, now)

	c := testCoupon("20", "200.00", "0")
	require.ErrorIs(t, e.Check(context.Background(), 1, c), ErrAlreadyUsed)
}

func TestCheck_OnePerDay_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr bool
	}{
		{"one hour ago", time.Hour, true},
		{"23h59m ago", 23*time.Hour + 59*time.Minute, true},
		{"exactly 24h ago", 24 * time.Hour, false},
		{"24h01m ago", 24*time.Hour + time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usedAt := now.Add(-tt.elapsed)
			log := &mockUsageLog{last: &Usage{
				UserID:   1,
				CouponID: 1,
				Limit:    UsageOnePerDay,
				UsedAt:   usedAt,
			}}
			e := eligibilityAt(log, now)

			c := testCoupon("20", "200.00", "0")
			c.UsageLimit = UsageOnePerDay

			err := e.Check(context.Background(), 1, c)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var rateErr *RateLimitedError
			require.ErrorAs(t, err, &rateErr)
			assert.Equal(t, usedAt.Add(24*time.Hour), rateErr.NextEligibleAt)
		})
	}
}

func TestCheck_LogError(t *testing.T) {
	e := NewEligibility(&mockUsageLog{err: context.DeadlineExceeded})

	c := testCoupon("20", "200.00", "0")
	require.Error(t, e.Check(context.Background(), 1, c))
}
