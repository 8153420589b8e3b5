package repo

import (
	"context"
	"time"

	"shillwatch/internal/platform/store"
	"shillwatch/internal/services/ingest/domain"
)

// Analytics is the ClickHouse side of ingest persistence
type Analytics struct {
	ch store.Clickhouse
}

// NewAnalytics constructs a ClickHouse ingest repository
func NewAnalytics(ch store.Clickhouse) *Analytics {
	if ch == nil {
		panic("ingest.Analytics requires a non nil Clickhouse seam")
	}
	return &Analytics{ch: ch}
}

var _ domain.AnalyticsRepo = (*Analytics)(nil)

// InsertTransfers appends normalized transfers as one batch
func (a *Analytics) InsertTransfers(ctx context.Context, rows []domain.Transfer) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([][]any, 0, len(rows))
	for _, t := range rows {
		batch = append(batch, []any{
			t.TxHash, t.Chain, t.TokenAddr, t.Symbol,
			t.FromAddr, t.ToAddr, t.Amount, t.AmountUSD,
			t.BlockTime.UTC(),
		})
	}
	return a.ch.Insert(ctx,
		`shillwatch.transfers
		 (tx_hash, chain, token_addr, symbol, from_addr, to_addr, amount, amount_usd, block_time)`,
		batch,
	)
}

// RollupSignals materializes one hour of hype signals from posts and
// transfers. Clears the hour slice first so reruns stay idempotent
func (a *Analytics) RollupSignals(ctx context.Context, hour time.Time) error {
	start := hour.Truncate(time.Hour).UTC()
	end := start.Add(time.Hour)

	if err := a.ch.Exec(ctx, `
		ALTER TABLE shillwatch.signal_rollups
		DELETE WHERE bucket_hour = toStartOfHour(?)
		SETTINGS mutations_sync=1`,
		start,
	); err != nil {
		return err
	}

	return a.ch.Exec(ctx, `
		INSERT INTO shillwatch.signal_rollups
		(
		  bucket_hour, symbol,
		  mention_count, author_count,
		  transfer_count, volume_usd,
		  hype_score
		)
		SELECT
		  toStartOfHour(?)                               AS bucket_hour,
		  t.symbol,
		  coalesce(p.mention_count, 0)                   AS mention_count,
		  coalesce(p.author_count, 0)                    AS author_count,
		  t.transfer_count,
		  t.volume_usd,
		  coalesce(p.mention_count, 0) * log1p(t.volume_usd) AS hype_score
		FROM
		(
		  SELECT symbol, count() AS transfer_count, sum(amount_usd) AS volume_usd
		  FROM shillwatch.transfers
		  WHERE block_time >= ? AND block_time < ?
		  GROUP BY symbol
		) t
		LEFT JOIN
		(
		  SELECT
		    upper(extract(text_norm, '\\$([a-z0-9]{2,10})')) AS symbol,
		    count()                                           AS mention_count,
		    uniqExact(author)                                 AS author_count
		  FROM shillwatch.posts
		  WHERE created_at >= ? AND created_at < ? AND symbol != ''
		  GROUP BY symbol
		) p ON p.symbol = t.symbol`,
		start, start, end, start, end,
	)
}

// SnapshotAccounts writes one daily count row per tracked account
func (a *Analytics) SnapshotAccounts(ctx context.Context, day time.Time, accounts []string) error {
	if len(accounts) == 0 {
		return nil
	}
	d := day.Truncate(24 * time.Hour).UTC()

	if err := a.ch.Exec(ctx, `
		ALTER TABLE shillwatch.account_snapshots
		DELETE WHERE snapshot_day = toDate(?)
		SETTINGS mutations_sync=1`,
		d,
	); err != nil {
		return err
	}

	return a.ch.Exec(ctx, `
		INSERT INTO shillwatch.account_snapshots
		(snapshot_day, author, post_count, first_seen, last_seen)
		SELECT
		  toDate(?)        AS snapshot_day,
		  author,
		  count()          AS post_count,
		  min(created_at)  AS first_seen,
		  max(created_at)  AS last_seen
		FROM shillwatch.posts
		WHERE author IN (?)
		GROUP BY author`,
		d, accounts,
	)
}

// AccuracyPoints compares the hype score an hour predicted against the
// realized volume move in the following hour
func (a *Analytics) AccuracyPoints(ctx context.Context, hour time.Time) ([]domain.AccuracyPoint, error) {
	start := hour.Truncate(time.Hour).UTC()

	rows, err := a.ch.Query(ctx, `
		SELECT
		  cur.symbol,
		  cur.hype_score                                AS predicted,
		  coalesce(next.volume_usd, 0) - cur.volume_usd AS realized
		FROM shillwatch.signal_rollups cur
		LEFT JOIN shillwatch.signal_rollups next
		  ON next.symbol = cur.symbol
		 AND next.bucket_hour = cur.bucket_hour + INTERVAL 1 HOUR
		WHERE cur.bucket_hour = toStartOfHour(?)`,
		start,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccuracyPoint
	for rows.Next() {
		var p domain.AccuracyPoint
		if err := rows.Scan(&p.Symbol, &p.Predicted, &p.Realized); err != nil {
			return nil, err
		}
		p.Hour = start
		p.Drift = p.Realized - p.Predicted
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertAccuracy appends drift rows as one batch
func (a *Analytics) InsertAccuracy(ctx context.Context, rows []domain.AccuracyPoint) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([][]any, 0, len(rows))
	for _, p := range rows {
		batch = append(batch, []any{
			p.Hour.UTC(), p.Symbol, p.Predicted, p.Realized, p.Drift,
		})
	}
	return a.ch.Insert(ctx,
		`shillwatch.signal_accuracy
		 (bucket_hour, symbol, predicted, realized, drift)`,
		batch,
	)
}
