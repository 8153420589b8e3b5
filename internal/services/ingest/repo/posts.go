package repo

import (
	"context"
	"time"

	"shillwatch/internal/core/normalize"
	"shillwatch/internal/platform/store"
	execdom "shillwatch/internal/services/parserexec/domain"
)

// PostsWriter persists fetched posts into ClickHouse with normalized text.
// It satisfies the execution core's results seam
type PostsWriter struct {
	ch   store.Clickhouse
	norm *normalize.Normalizer
	now  func() time.Time
}

// NewPostsWriter constructs a ClickHouse posts writer
func NewPostsWriter(ch store.Clickhouse) *PostsWriter {
	if ch == nil {
		panic("ingest.PostsWriter requires a non nil Clickhouse seam")
	}
	return &PostsWriter{ch: ch, norm: normalize.New(), now: time.Now}
}

var _ execdom.ResultsWriter = (*PostsWriter)(nil)

// WritePosts appends one batch of posts for a finished task
func (w *PostsWriter) WritePosts(ctx context.Context, taskID string, posts []execdom.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ingested := w.now().UTC()
	batch := make([][]any, 0, len(posts))
	for _, p := range posts {
		raw := normalize.Sanitize(p.Text)
		batch = append(batch, []any{
			taskID, p.ID, p.Author,
			raw, w.norm.Normalize(raw),
			p.CreatedAt.UTC(), ingested,
		})
	}
	return w.ch.Insert(ctx,
		`shillwatch.posts
		 (task_id, post_id, author, text_raw, text_norm, created_at, ingested_at)`,
		batch,
	)
}
