package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundledger/internal/auth"
	"fundledger/internal/core"
	"fundledger/internal/log"
	"fundledger/internal/storage"
)

type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *fakePublisher) PublishOperationPosted(_ context.Context, id int64, _ string, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

func (p *fakePublisher) published() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.ids...)
}

// manualClock is shared by the store and the service.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	svc       *LedgerService
	store     *storage.SQLiteStore
	publisher *fakePublisher
	clock     *manualClock
	owner     *core.User
	worker    *core.User
	viewer    *core.User
	sales     *core.Category
	rent      *core.Category
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := &manualClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), storage.WithClock(clock.Now))
	require.NoError(t, err)

	repo := store.Repository()
	owner, err := repo.CreateUser(ctx, 100, "Owner", core.RoleOwner)
	require.NoError(t, err)
	worker, err := repo.CreateUser(ctx, 200, "Worker", core.RoleWorker)
	require.NoError(t, err)
	viewer, err := repo.CreateUser(ctx, 300, "Viewer", core.RoleViewer)
	require.NoError(t, err)
	sales, err := repo.CreateCategory(ctx, core.KindIncome, "Sales")
	require.NoError(t, err)
	rent, err := repo.CreateCategory(ctx, core.KindExpense, "Rent")
	require.NoError(t, err)

	if opts.Now == nil {
		opts.Now = clock.Now
	}
	pub := &fakePublisher{}
	svc := NewLedgerService(store, pub, nil, nil, opts)
	t.Cleanup(func() { _ = svc.Close() })

	return &fixture{
		svc: svc, store: store, publisher: pub, clock: clock,
		owner: owner, worker: worker, viewer: viewer,
		sales: sales, rent: rent,
	}
}

func (f *fixture) post(t *testing.T, actor *core.User, typ core.OperationType, amount int64, cat *core.Category) *core.Operation {
	t.Helper()
	req := PostRequest{Type: typ, Amount: amount}
	if cat != nil {
		req.CategoryID = &cat.ID
	}
	op, err := f.svc.PostOperation(context.Background(), actor, req)
	require.NoError(t, err)
	return op
}

func TestPostOperation_Scenario(t *testing.T) {
	f := newFixture(t, Options{EnforceBalance: true})
	ctx := context.Background()

	in := f.post(t, f.owner, core.OpIncome, 5000, f.sales)
	out := f.post(t, f.worker, core.OpExpense, 1200, f.rent)
	res := f.post(t, f.owner, core.OpReserveIn, 1000, nil)

	bal, err := f.svc.Balance(ctx, f.viewer)
	require.NoError(t, err)
	assert.Equal(t, core.Balance{Total: 3800, Reserve: 1000, Available: 2800}, bal)

	assert.Equal(t, []int64{in.ID, out.ID, res.ID}, f.publisher.published())
	assert.Equal(t, f.worker.ID, out.CreatedByID)
}

func TestPostOperation_BalanceEnforcement(t *testing.T) {
	ctx := context.Background()

	t.Run("expense above available", func(t *testing.T) {
		f := newFixture(t, Options{EnforceBalance: true})
		f.post(t, f.owner, core.OpIncome, 100, f.sales)

		_, err := f.svc.PostOperation(ctx, f.owner, PostRequest{Type: core.OpExpense, Amount: 101, CategoryID: &f.rent.ID})
		require.ErrorIs(t, err, core.ErrInsufficientFunds)

		ops, err := f.svc.History(ctx, f.owner, core.OperationFilter{})
		require.NoError(t, err)
		assert.Len(t, ops, 1)
		assert.Len(t, f.publisher.published(), 1)
	})

	t.Run("reserve in draws on available", func(t *testing.T) {
		f := newFixture(t, Options{EnforceBalance: true})
		f.post(t, f.owner, core.OpIncome, 100, f.sales)
		f.post(t, f.owner, core.OpReserveIn, 60, nil)

		_, err := f.svc.PostOperation(ctx, f.owner, PostRequest{Type: core.OpReserveIn, Amount: 41})
		require.ErrorIs(t, err, core.ErrInsufficientFunds)
	})

	t.Run("reserve out above reserve", func(t *testing.T) {
		f := newFixture(t, Options{EnforceBalance: true})
		f.post(t, f.owner, core.OpIncome, 100, f.sales)
		f.post(t, f.owner, core.OpReserveIn, 30, nil)

		_, err := f.svc.PostOperation(ctx, f.owner, PostRequest{Type: core.OpReserveOut, Amount: 31})
		require.ErrorIs(t, err, core.ErrInsufficientReserve)

		f.post(t, f.owner, core.OpReserveOut, 30, nil)
		bal, err := f.svc.Balance(ctx, f.owner)
		require.NoError(t, err)
		assert.Equal(t, core.Balance{Total: 100, Reserve: 0, Available: 100}, bal)
	})

	t.Run("disabled enforcement allows overdraft", func(t *testing.T) {
		f := newFixture(t, Options{EnforceBalance: false})
		f.post(t, f.owner, core.OpExpense, 500, f.rent)

		bal, err := f.svc.Balance(ctx, f.owner)
		require.NoError(t, err)
		assert.Equal(t, int64(-500), bal.Total)
		assert.Equal(t, int64(-500), bal.Available)
	})
}

func TestPostOperation_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	retired, err := f.store.Repository().CreateCategory(ctx, core.KindIncome, "Grants")
	require.NoError(t, err)
	res, err := f.svc.DeactivateCategory(ctx, f.owner, retired.ID)
	require.NoError(t, err)
	require.True(t, res.OK)

	missing := int64(9999)
	tests := []struct {
		name string
		req  PostRequest
		want error
	}{
		{"invalid type", PostRequest{Type: "transfer", Amount: 10}, core.ErrInvalidOperationType},
		{"zero amount", PostRequest{Type: core.OpIncome, Amount: 0, CategoryID: &f.sales.ID}, core.ErrInvalidAmount},
		{"negative amount", PostRequest{Type: core.OpExpense, Amount: -5, CategoryID: &f.rent.ID}, core.ErrInvalidAmount},
		{"income without category", PostRequest{Type: core.OpIncome, Amount: 10}, core.ErrCategoryRequired},
		{"reserve with category", PostRequest{Type: core.OpReserveIn, Amount: 10, CategoryID: &f.sales.ID}, core.ErrCategoryNotAllowed},
		{"reserve with category name", PostRequest{Type: core.OpReserveOut, Amount: 10, CategoryName: "Sales"}, core.ErrCategoryNotAllowed},
		{"kind mismatch", PostRequest{Type: core.OpIncome, Amount: 10, CategoryID: &f.rent.ID}, core.ErrCategoryKindMismatch},
		{"unknown category id", PostRequest{Type: core.OpIncome, Amount: 10, CategoryID: &missing}, core.ErrCategoryNotFound},
		{"inactive category", PostRequest{Type: core.OpIncome, Amount: 10, CategoryID: &retired.ID}, core.ErrCategoryNotFound},
		{"unknown category name", PostRequest{Type: core.OpExpense, Amount: 10, CategoryName: "Nope"}, core.ErrCategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PostOperation(ctx, f.owner, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	ops, err := f.svc.History(ctx, f.owner, core.OperationFilter{})
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Empty(t, f.publisher.published())
}

func TestPostOperation_AmountRange(t *testing.T) {
	for _, enforce := range []bool{false, true} {
		f := newFixture(t, Options{EnforceBalance: enforce})
		ctx := context.Background()

		f.post(t, f.worker, core.OpIncome, core.MaxAmount, f.sales)

		for _, amount := range []int64{core.MaxAmount + 1, math.MaxInt64} {
			_, err := f.svc.PostOperation(ctx, f.worker, PostRequest{Type: core.OpIncome, Amount: amount, CategoryID: &f.sales.ID})
			require.ErrorIs(t, err, core.ErrInvalidAmount)
		}

		// Bring income right under the ceiling without going through the checks.
		_, err := f.store.Repository().AddOperation(ctx, storage.AddOperationParams{
			Type:       core.OpIncome,
			Amount:     core.MaxTotal - core.MaxAmount - 5,
			CreatorID:  f.owner.ID,
			CategoryID: &f.sales.ID,
		})
		require.NoError(t, err)

		f.post(t, f.worker, core.OpIncome, 5, f.sales)
		_, err = f.svc.PostOperation(ctx, f.worker, PostRequest{Type: core.OpIncome, Amount: 1, CategoryID: &f.sales.ID})
		require.ErrorIs(t, err, core.ErrTotalOutOfRange)

		bal, err := f.svc.Balance(ctx, f.owner)
		require.NoError(t, err)
		assert.Equal(t, core.MaxTotal, bal.Total)

		f.post(t, f.worker, core.OpExpense, 10, f.rent)
		bal, err = f.svc.Balance(ctx, f.owner)
		require.NoError(t, err)
		assert.Equal(t, core.Balance{Total: core.MaxTotal - 10, Available: core.MaxTotal - 10}, bal)
	}
}

func TestPostOperation_ByCategoryName(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	op, err := f.svc.PostOperation(ctx, f.worker, PostRequest{
		Type:         core.OpExpense,
		Amount:       75,
		CategoryName: "  Rent ",
		Comment:      "  march  ",
	})
	require.NoError(t, err)
	require.NotNil(t, op.CategoryID)
	assert.Equal(t, f.rent.ID, *op.CategoryID)
	assert.Equal(t, "march", op.Comment)
}

func TestPostOperation_Forbidden(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	req := PostRequest{Type: core.OpIncome, Amount: 10, CategoryID: &f.sales.ID}

	_, err := f.svc.PostOperation(ctx, f.viewer, req)
	require.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.PostOperation(ctx, nil, req)
	require.ErrorIs(t, err, core.ErrForbidden)

	inactive := *f.worker
	inactive.IsActive = false
	_, err = f.svc.PostOperation(ctx, &inactive, req)
	require.ErrorIs(t, err, core.ErrForbidden)

	ops, err := f.svc.History(ctx, f.owner, core.OperationFilter{})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestPostOperation_PublishFailureKeepsOperation(t *testing.T) {
	f := newFixture(t, Options{})
	f.publisher.err = errors.New("broker down")

	op := f.post(t, f.owner, core.OpIncome, 10, f.sales)
	assert.Positive(t, op.ID)

	ids, err := f.store.Repository().UnsyncedOperationIDs(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{op.ID}, ids)
}

func TestPostOperation_NilPublisher(t *testing.T) {
	f := newFixture(t, Options{})
	svc := NewLedgerService(f.store, nil, nil, nil, Options{})

	_, err := svc.PostOperation(context.Background(), f.owner, PostRequest{Type: core.OpReserveIn, Amount: 1})
	require.NoError(t, err)
}

func TestHistory_Scope(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ownerOp := f.post(t, f.owner, core.OpIncome, 1000, f.sales)
	workerOp := f.post(t, f.worker, core.OpExpense, 100, f.rent)

	all, err := f.svc.History(ctx, f.owner, core.OperationFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{workerOp.ID, ownerOp.ID}, ids(all))

	// A worker asking for someone else's operations still gets only its own.
	own, err := f.svc.History(ctx, f.worker, core.OperationFilter{CreatorID: &f.owner.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{workerOp.ID}, ids(own))

	none, err := f.svc.History(ctx, f.viewer, core.OperationFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	byOwner, err := f.svc.History(ctx, f.owner, core.OperationFilter{CreatorID: &f.owner.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{ownerOp.ID}, ids(byOwner))

	_, err = f.svc.History(ctx, nil, core.OperationFilter{})
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestPeriodReport(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)

	f := newFixture(t, Options{Location: loc})
	ctx := context.Background()
	today := time.Date(2024, 3, 15, 12, 0, 0, 0, loc)

	f.clock.Set(today.AddDate(0, 0, -40))
	f.post(t, f.owner, core.OpIncome, 1000, f.sales)
	f.clock.Set(today.AddDate(0, 0, -5))
	recent := f.post(t, f.owner, core.OpIncome, 300, f.sales)
	f.clock.Set(today.Add(-time.Hour))
	spent := f.post(t, f.worker, core.OpExpense, 200, f.rent)
	f.clock.Set(today)

	report, err := f.svc.PeriodReport(ctx, f.owner, 30)
	require.NoError(t, err)
	assert.Equal(t, []int64{spent.ID, recent.ID}, ids(report.Operations))
	assert.Equal(t, int64(300), report.Totals.Income)
	assert.Equal(t, int64(200), report.Totals.Expense)
	assert.Equal(t, core.Balance{Total: 1100, Reserve: 0, Available: 1100}, report.Balance)
	require.NotNil(t, report.Start)
	assert.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, loc), report.Start.In(loc))

	incomeOnly, err := f.svc.PeriodReport(ctx, f.owner, 30, core.OpIncome)
	require.NoError(t, err)
	assert.Equal(t, []int64{recent.ID}, ids(incomeOnly.Operations))

	_, err = f.svc.PeriodReport(ctx, f.worker, 30)
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestQuickReport(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.post(t, f.owner, core.OpIncome, 1000, f.sales)
	var workerOps []int64
	for range 3 {
		workerOps = append(workerOps, f.post(t, f.worker, core.OpExpense, 10, f.rent).ID)
	}

	report, err := f.svc.QuickReport(ctx, f.worker, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{workerOps[2], workerOps[1]}, ids(report.Operations))
	assert.Equal(t, int64(970), report.Balance.Total)
	assert.Nil(t, report.Start)

	ownerReport, err := f.svc.QuickReport(ctx, f.owner, 10)
	require.NoError(t, err)
	assert.Len(t, ownerReport.Operations, 4)
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.post(t, f.owner, core.OpIncome, 1000, f.sales)
	f.post(t, f.owner, core.OpExpense, 250, f.rent)

	var buf bytes.Buffer
	n, err := f.svc.ExportCSV(ctx, f.owner, &buf, core.OperationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,type,amount,category,comment,created_at,created_by", lines[0])
	assert.Contains(t, lines[1], "expense,250,Rent")
	assert.Contains(t, lines[2], "income,1000,Sales")

	_, err = f.svc.ExportCSV(ctx, f.worker, &buf, core.OperationFilter{})
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestInviteAndRemoveUser(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	u, err := f.svc.InviteUser(ctx, f.owner, 400, "Bob", core.RoleWorker)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	_, err = f.svc.InviteUser(ctx, f.owner, 400, "Bob", core.RoleWorker)
	require.ErrorIs(t, err, core.ErrUserExists)

	ok, err := f.svc.RemoveUser(ctx, f.owner, 400)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.RemoveUser(ctx, f.owner, 400)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := f.svc.InviteUser(ctx, f.owner, 400, "Robert", core.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Robert", again.Name)
	assert.Equal(t, core.RoleViewer, again.Role)
	assert.True(t, again.IsActive)

	active, err := f.svc.ListUsers(ctx, f.owner, true)
	require.NoError(t, err)
	assert.Len(t, active, 4)

	_, err = f.svc.InviteUser(ctx, f.owner, 0, "Nobody", core.RoleWorker)
	require.ErrorIs(t, err, core.ErrInvalidExternalID)

	_, err = f.svc.InviteUser(ctx, f.worker, 500, "Eve", core.RoleOwner)
	require.ErrorIs(t, err, core.ErrForbidden)
	_, err = f.svc.RemoveUser(ctx, f.viewer, 200)
	require.ErrorIs(t, err, core.ErrForbidden)
	_, err = f.svc.ListUsers(ctx, f.worker, false)
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestRemoveUser_InvalidatesResolver(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	resolver := auth.NewResolver(f.store.Repository(), 16, time.Hour)
	svc := NewLedgerService(f.store, nil, resolver, nil, Options{})

	u, err := resolver.Resolve(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, u)

	ok, err := svc.RemoveUser(ctx, f.owner, 200)
	require.NoError(t, err)
	require.True(t, ok)

	u, err = resolver.Resolve(ctx, 200)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCategoryAdministration(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	cat, err := f.svc.AddCategory(ctx, f.owner, core.KindExpense, "  Fuel ")
	require.NoError(t, err)
	assert.Equal(t, "Fuel", cat.Name)

	same, err := f.svc.AddCategory(ctx, f.owner, core.KindExpense, "Fuel")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, same.ID)

	res, err := f.svc.RenameCategory(ctx, f.owner, cat.ID, "Rent")
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = f.svc.RenameCategory(ctx, f.owner, cat.ID, "Gas")
	require.NoError(t, err)
	assert.True(t, res.OK)

	f.post(t, f.owner, core.OpExpense, 5, f.rent)
	res, err = f.svc.DeactivateCategory(ctx, f.owner, f.rent.ID)
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = f.svc.DeactivateCategory(ctx, f.owner, cat.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)

	cats, err := f.svc.ListCategories(ctx, f.viewer, core.KindExpense)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Rent", cats[0].Name)

	_, err = f.svc.AddCategory(ctx, f.worker, core.KindIncome, "Tips")
	require.ErrorIs(t, err, core.ErrForbidden)
	_, err = f.svc.RenameCategory(ctx, f.viewer, f.sales.ID, "Revenue")
	require.ErrorIs(t, err, core.ErrForbidden)
	_, err = f.svc.DeactivateCategory(ctx, f.worker, f.sales.ID)
	require.ErrorIs(t, err, core.ErrForbidden)
}

func TestDenialIsAudited(t *testing.T) {
	f := newFixture(t, Options{})

	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewJSONHandler(&buf, nil)})
	svc := NewLedgerService(f.store, nil, nil, log.NewAudit(logger), Options{})

	_, err := svc.PostOperation(context.Background(), f.viewer, PostRequest{Type: core.OpReserveIn, Amount: 1})
	require.ErrorIs(t, err, core.ErrForbidden)

	out := buf.String()
	assert.Contains(t, out, `"event":"auth.denied"`)
	assert.Contains(t, out, `"component":"audit"`)
	assert.Contains(t, out, `"external_id":300`)
	assert.Contains(t, out, `"operation":"post operation"`)
}

func TestLedgerService_CloseWithoutComponents(t *testing.T) {
	svc := NewLedgerService(nil, nil, nil, nil, Options{})
	require.NoError(t, svc.Close())
}

func ids(ops []core.Operation) []int64 {
	out := make([]int64, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.ID)
	}
	return out
}
