package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/clock"
	"shillwatch/internal/platform/store"
	"shillwatch/internal/services/ingest/domain"
)

var testNow = time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

// fakeTx satisfies repokit.TxRunner without a database
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) store.Row             { return nil }
func (f fakeTx) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	return fn(f)
}

// fakeRepo is an in-memory StorageRepo shared across binder binds
type fakeRepo struct {
	runs     []run
	cursors  map[string]string
	tokens   []string
	accounts []string
}

type run struct {
	id  int64
	job string
	fin *domain.RunInfo
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{cursors: map[string]string{}}
}

func (f *fakeRepo) StartRun(_ context.Context, job string, _ time.Time) (int64, error) {
	id := int64(len(f.runs) + 1)
	f.runs = append(f.runs, run{id: id, job: job})
	return id, nil
}

func (f *fakeRepo) FinishRun(_ context.Context, runID int64, fin domain.RunInfo) error {
	for i := range f.runs {
		if f.runs[i].id == runID {
			cp := fin
			f.runs[i].fin = &cp
			return nil
		}
	}
	return errors.New("unknown run")
}

func (f *fakeRepo) Cursor(_ context.Context, job string) (string, error) {
	return f.cursors[job], nil
}

func (f *fakeRepo) SetCursor(_ context.Context, job, cursor string, _ time.Time) error {
	f.cursors[job] = cursor
	return nil
}

func (f *fakeRepo) ListTrackedTokens(context.Context) ([]string, error)   { return f.tokens, nil }
func (f *fakeRepo) ListTrackedAccounts(context.Context) ([]string, error) { return f.accounts, nil }

type binderOf struct{ r *fakeRepo }

func (b binderOf) Bind(repokit.Queryer) domain.StorageRepo { return b.r }

// fakeAnalytics records every write it receives
type fakeAnalytics struct {
	transfers   []domain.Transfer
	insertErr   error
	rollupHours []time.Time
	snapDays    []time.Time
	snapAccts   [][]string
	points      []domain.AccuracyPoint
	accuracy    []domain.AccuracyPoint
}

func (f *fakeAnalytics) InsertTransfers(_ context.Context, rows []domain.Transfer) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.transfers = append(f.transfers, rows...)
	return nil
}

func (f *fakeAnalytics) RollupSignals(_ context.Context, hour time.Time) error {
	f.rollupHours = append(f.rollupHours, hour)
	return nil
}

func (f *fakeAnalytics) SnapshotAccounts(_ context.Context, day time.Time, accounts []string) error {
	f.snapDays = append(f.snapDays, day)
	f.snapAccts = append(f.snapAccts, accounts)
	return nil
}

func (f *fakeAnalytics) AccuracyPoints(context.Context, time.Time) ([]domain.AccuracyPoint, error) {
	return f.points, nil
}

func (f *fakeAnalytics) InsertAccuracy(_ context.Context, rows []domain.AccuracyPoint) error {
	f.accuracy = append(f.accuracy, rows...)
	return nil
}

// fakeFeed serves scripted pages keyed by cursor
type fakeFeed struct {
	pages map[string]page
	err   error
	pulls []string
}

type page struct {
	rows []domain.Transfer
	next string
}

func (f *fakeFeed) Pull(_ context.Context, cursor string) ([]domain.Transfer, string, error) {
	f.pulls = append(f.pulls, cursor)
	if f.err != nil {
		return nil, "", f.err
	}
	p := f.pages[cursor]
	return p.rows, p.next, nil
}

func transfer(sym string, usd float64) domain.Transfer {
	return domain.Transfer{
		TxHash: "0x" + sym, Chain: "solana", Symbol: sym,
		AmountUSD: usd, BlockTime: testNow,
	}
}

func newService(repo *fakeRepo, an *fakeAnalytics, feed *fakeFeed, cfg Config) *Service {
	return New(Deps{
		DB:        fakeTx{},
		Binder:    binderOf{r: repo},
		Analytics: an,
		Feed:      feed,
		Clock:     clock.NewFake(testNow),
	}, cfg)
}

func TestIngestTransfers_PagesFilterAndCursor(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.tokens = []string{"PUMP", "MOON"}
	repo.cursors["transfers.ingest"] = "c-1"

	feed := &fakeFeed{pages: map[string]page{
		"c-1": {rows: []domain.Transfer{transfer("PUMP", 100), transfer("RUG", 5)}, next: "c-2"},
		"c-2": {rows: []domain.Transfer{transfer("MOON", 50)}, next: ""},
	}}
	an := &fakeAnalytics{}

	svc := newService(repo, an, feed, Config{})
	if err := svc.IngestTransfers(context.Background()); err != nil {
		t.Fatalf("IngestTransfers: %v", err)
	}

	if len(an.transfers) != 2 {
		t.Fatalf("kept %d transfers, want 2 (untracked filtered)", len(an.transfers))
	}
	if an.transfers[0].Symbol != "PUMP" || an.transfers[1].Symbol != "MOON" {
		t.Fatalf("symbols = %v %v", an.transfers[0].Symbol, an.transfers[1].Symbol)
	}
	if got := repo.cursors["transfers.ingest"]; got != "c-2" {
		t.Fatalf("cursor = %q, want c-2", got)
	}
	if len(feed.pulls) != 2 || feed.pulls[0] != "c-1" || feed.pulls[1] != "c-2" {
		t.Fatalf("pulls = %v", feed.pulls)
	}

	if len(repo.runs) != 1 || repo.runs[0].fin == nil {
		t.Fatalf("runs = %+v", repo.runs)
	}
	fin := repo.runs[0].fin
	if fin.Status != "ok" || fin.Rows != 2 {
		t.Fatalf("finish = %+v", fin)
	}
}

func TestIngestTransfers_NoTrackedTokensKeepsEverything(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	feed := &fakeFeed{pages: map[string]page{
		"": {rows: []domain.Transfer{transfer("ANY", 1), transfer("OTHER", 2)}, next: ""},
	}}
	an := &fakeAnalytics{}

	svc := newService(repo, an, feed, Config{})
	if err := svc.IngestTransfers(context.Background()); err != nil {
		t.Fatalf("IngestTransfers: %v", err)
	}
	if len(an.transfers) != 2 {
		t.Fatalf("kept %d transfers, want all", len(an.transfers))
	}
}

func TestIngestTransfers_MinAmountUSDDropsDust(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	feed := &fakeFeed{pages: map[string]page{
		"": {rows: []domain.Transfer{
			transfer("PUMP", 9.99),
			transfer("MOON", 10),
			transfer("RUG", 5000),
		}, next: ""},
	}}
	an := &fakeAnalytics{}

	svc := newService(repo, an, feed, Config{MinAmountUSD: 10})
	if err := svc.IngestTransfers(context.Background()); err != nil {
		t.Fatalf("IngestTransfers: %v", err)
	}
	if len(an.transfers) != 2 {
		t.Fatalf("kept %d transfers, want 2 (dust dropped)", len(an.transfers))
	}
	if an.transfers[0].Symbol != "MOON" || an.transfers[1].Symbol != "RUG" {
		t.Fatalf("symbols = %v %v", an.transfers[0].Symbol, an.transfers[1].Symbol)
	}
}

func TestIngestTransfers_FeedErrorRecordsErrorRun(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	feed := &fakeFeed{err: errors.New("feed down")}
	an := &fakeAnalytics{}

	svc := newService(repo, an, feed, Config{})
	err := svc.IngestTransfers(context.Background())
	if err == nil {
		t.Fatalf("expected feed error")
	}

	if len(repo.runs) != 1 || repo.runs[0].fin == nil {
		t.Fatalf("runs = %+v", repo.runs)
	}
	fin := repo.runs[0].fin
	if fin.Status != "error" || fin.ErrText == "" {
		t.Fatalf("finish = %+v", fin)
	}
}

func TestIngestTransfers_MaxPagesStopsPulling(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	// every page points at the next forever
	feed := &fakeFeed{pages: map[string]page{}}
	cursors := []string{"", "p1", "p2", "p3", "p4"}
	for i := 0; i < len(cursors)-1; i++ {
		feed.pages[cursors[i]] = page{rows: []domain.Transfer{transfer("X", 1)}, next: cursors[i+1]}
	}
	feed.pages["p4"] = page{rows: []domain.Transfer{transfer("X", 1)}, next: "p5"}
	an := &fakeAnalytics{}

	svc := newService(repo, an, feed, Config{MaxPages: 3})
	if err := svc.IngestTransfers(context.Background()); err != nil {
		t.Fatalf("IngestTransfers: %v", err)
	}
	if len(feed.pulls) != 3 {
		t.Fatalf("pulls = %d, want capped at 3", len(feed.pulls))
	}
	if got := repo.cursors["transfers.ingest"]; got != "p3" {
		t.Fatalf("cursor = %q, want p3 for resume", got)
	}
}

func TestRollupSignals_PreviousFullHour(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	an := &fakeAnalytics{}
	svc := newService(repo, an, &fakeFeed{}, Config{})

	if err := svc.RollupSignals(context.Background()); err != nil {
		t.Fatalf("RollupSignals: %v", err)
	}
	want := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	if len(an.rollupHours) != 1 || !an.rollupHours[0].Equal(want) {
		t.Fatalf("rollup hours = %v, want %v", an.rollupHours, want)
	}
}

func TestSnapshotAccounts_PreviousDayAndTrackedList(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.accounts = []string{"alice", "bob"}
	an := &fakeAnalytics{}
	svc := newService(repo, an, &fakeFeed{}, Config{})

	if err := svc.SnapshotAccounts(context.Background()); err != nil {
		t.Fatalf("SnapshotAccounts: %v", err)
	}
	want := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	if len(an.snapDays) != 1 || !an.snapDays[0].Equal(want) {
		t.Fatalf("snapshot days = %v, want %v", an.snapDays, want)
	}
	if len(an.snapAccts[0]) != 2 {
		t.Fatalf("accounts = %v", an.snapAccts[0])
	}
	if repo.runs[0].fin.Rows != 2 {
		t.Fatalf("finish rows = %d", repo.runs[0].fin.Rows)
	}
}

func TestCheckAccuracy_InsertsDriftRows(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	an := &fakeAnalytics{points: []domain.AccuracyPoint{
		{Symbol: "PUMP", Predicted: 10, Realized: 4, Drift: -6},
	}}
	svc := newService(repo, an, &fakeFeed{}, Config{})

	if err := svc.CheckAccuracy(context.Background()); err != nil {
		t.Fatalf("CheckAccuracy: %v", err)
	}
	if len(an.accuracy) != 1 || an.accuracy[0].Symbol != "PUMP" {
		t.Fatalf("accuracy rows = %+v", an.accuracy)
	}
	if repo.runs[0].fin.Status != "ok" || repo.runs[0].fin.Rows != 1 {
		t.Fatalf("finish = %+v", repo.runs[0].fin)
	}
}

func TestJobs_CatalogNamesAndCadence(t *testing.T) {
	t.Parallel()

	svc := newService(newFakeRepo(), &fakeAnalytics{}, &fakeFeed{}, Config{})
	jobs := svc.Jobs()
	if len(jobs) != 4 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	wantNames := []string{"transfers.ingest", "signals.rollup", "posts.snapshot", "accuracy.check"}
	for i, j := range jobs {
		if j.Name != wantNames[i] {
			t.Fatalf("job[%d] = %q, want %q", i, j.Name, wantNames[i])
		}
		if j.Every <= 0 || j.Run == nil {
			t.Fatalf("job %q missing cadence or handler", j.Name)
		}
	}
}
