package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/go-faster/errors"

	"github.com/giftible/marketplace/internal/domain/finance"
)

const (
	completedPayoutsSQL = `SELECT COALESCE(SUM(amount), 0)
		FROM payouts WHERE ngo_id = $1 AND status = 'Completed'`

	createPayoutSQL = `INSERT INTO payouts (ngo_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	getPayoutSQL = `SELECT p.id, p.ngo_id, COALESCE(u.ngo_name, ''), p.amount, p.status,
			p.created_at, p.processed_at
		FROM payouts p
		JOIN users u ON u.id = p.ngo_id
		WHERE p.id = $1`

	markPayoutProcessedSQL = `UPDATE payouts
		SET status = $2, processed_at = $3
		WHERE id = $1 AND status = 'Pending'`

	listPendingPayoutsSQL = `SELECT p.id, p.ngo_id, COALESCE(u.ngo_name, ''), p.amount, p.status,
			p.created_at, p.processed_at
		FROM payouts p
		JOIN users u ON u.id = p.ngo_id
		WHERE p.status = 'Pending'
		ORDER BY p.created_at`

	payoutHistorySQL = `SELECT p.id, p.ngo_id, COALESCE(u.ngo_name, ''), p.amount, p.status,
			p.created_at, p.processed_at
		FROM payouts p
		JOIN users u ON u.id = p.ngo_id
		WHERE p.created_at >= $1 AND p.created_at <= $2
		  AND ($3 = 0 OR p.ngo_id = $3)
		ORDER BY p.created_at DESC`

	advisoryLockSQL = `SELECT pg_advisory_xact_lock($1)`
)

var _ finance.PayoutRepository = (*PayoutRepository)(nil)

// PayoutRepository implements finance.PayoutRepository backed by
// PostgreSQL.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository returns a PayoutRepository that uses the given pool.
func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

// CompletedTotal sums the NGO's Completed payouts.
func (r *PayoutRepository) CompletedTotal(ctx context.Context, ngoID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := from(ctx, r.pool).QueryRow(ctx, completedPayoutsSQL, ngoID).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum completed payouts")
	}
	return total, nil
}

// Create inserts a new payout row and fills its id and created_at.
func (r *PayoutRepository) Create(ctx context.Context, p *finance.Payout) error {
	err := from(ctx, r.pool).QueryRow(ctx, createPayoutSQL,
		p.NGOID, p.Amount, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "create payout")
	}
	return nil
}

// Get returns one payout or finance.ErrPayoutNotFound.
func (r *PayoutRepository) Get(ctx context.Context, id int64) (*finance.Payout, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getPayoutSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get payout %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, finance.ErrPayoutNotFound
		}
		return nil, errors.Wrapf(err, "get payout %d", id)
	}
	return &p, nil
}

// MarkProcessed transitions a Pending payout to its final status.
func (r *PayoutRepository) MarkProcessed(ctx context.Context, id int64, status finance.PayoutStatus, processedAt time.Time) error {
	tag, err := from(ctx, r.pool).Exec(ctx, markPayoutProcessedSQL, id, string(status), processedAt)
	if err != nil {
		return errors.Wrapf(err, "process payout %d", id)
	}
	if tag.RowsAffected() == 0 {
		return finance.ErrAlreadyProcessed
	}
	return nil
}

// ListPending returns all Pending payouts, oldest first.
func (r *PayoutRepository) ListPending(ctx context.Context) ([]finance.Payout, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listPendingPayoutsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list pending payouts")
	}
	return pgx.CollectRows(rows, scanPayout)
}

// History returns payouts in the filter window, newest first.
func (r *PayoutRepository) History(ctx context.Context, f finance.HistoryFilter) ([]finance.Payout, error) {
	fromTime := f.From
	toTime := f.To
	if toTime.IsZero() {
		toTime = time.Now()
	}

	rows, err := from(ctx, r.pool).Query(ctx, payoutHistorySQL, fromTime, toTime, f.NGOID)
	if err != nil {
		return nil, errors.Wrap(err, "list payout history")
	}
	return pgx.CollectRows(rows, scanPayout)
}

// Locked runs fn in a transaction that holds the NGO's advisory lock,
// serializing payout balance checks and writes per NGO. Nested calls
// reuse the surrounding transaction.
func (r *PayoutRepository) Locked(ctx context.Context, ngoID int64, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, advisoryLockSQL, ngoID); err != nil {
			return errors.Wrap(err, "acquire payout lock")
		}
		return fn(withTx(ctx, tx))
	})
}

func scanPayout(row pgx.CollectableRow) (finance.Payout, error) {
	var (
		p      finance.Payout
		status string
	)
	err := row.Scan(&p.ID, &p.NGOID, &p.NGOName, &p.Amount, &status, &p.CreatedAt, &p.ProcessedAt)
	p.Status = finance.PayoutStatus(status)
	return p, err
}
