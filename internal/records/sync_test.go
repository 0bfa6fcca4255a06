package records

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/orderdesk/internal/api"
	"github.com/tonimelisma/orderdesk/internal/credential"
	"github.com/tonimelisma/orderdesk/internal/fakeapi"
)

type env struct {
	fake   *fakeapi.Server
	store  *credential.MemoryStore
	client *api.Client
	sync   *Sync
}

func newEnv(t *testing.T, cache Cache) *env {
	t.Helper()

	fake := fakeapi.New("admin", "s3cret")
	url := fake.Start()
	t.Cleanup(fake.Close)

	store := credential.NewMemoryStore("")
	client := api.NewClient(url, nil, store, nil, "")
	client.SetMaxRetries(0)

	_, err := client.Login(context.Background(), "admin", "s3cret")
	require.NoError(t, err)

	return &env{
		fake:   fake,
		store:  store,
		client: client,
		sync:   New(client, cache, nil),
	}
}

func ids(orders []api.Order) []int64 {
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}

	return out
}

func TestFetch_ReplacesList(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)
	e.fake.AddOrder("Luis", 500)

	orders, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids(orders))
	assert.Equal(t, []int64{2, 1}, ids(e.sync.List()))

	o, ok := e.sync.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Ana", o.DisplayName())

	_, ok = e.sync.Get(99)
	assert.False(t, ok)
}

func TestFetch_UnauthorizedLeavesListAndClearsStore(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	e.fake.AddOrder("Luis", 500)
	e.fake.RevokeAll()

	_, err = e.sync.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))

	_, ok := e.store.Get()
	assert.False(t, ok)
	assert.Equal(t, []int64{1}, ids(e.sync.List()))
}

func TestFetch_CanceledLeavesList(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	e.fake.AddOrder("Luis", 500)
	gate := e.fake.HoldNext(fakeapi.RouteListOrders)
	defer gate.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := e.sync.Fetch(ctx)
		done <- err
	}()

	<-gate.Started()
	cancel()

	err = <-done
	require.Error(t, err)
	assert.True(t, api.IsCanceled(err))
	assert.Equal(t, []int64{1}, ids(e.sync.List()))

	_, ok := e.store.Get()
	assert.True(t, ok)
}

func TestFetch_LastStartedWins(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	gate := e.fake.HoldNext(fakeapi.RouteListOrders)
	defer gate.Release()

	slow := make(chan []api.Order, 1)

	go func() {
		orders, err := e.sync.Fetch(context.Background())
		assert.NoError(t, err)
		slow <- orders
	}()

	<-gate.Started()

	e.fake.AddOrder("Luis", 500)

	fresh, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids(fresh))

	gate.Release()
	stale := <-slow

	// The older fetch is dropped; the list still has both orders.
	assert.Equal(t, []int64{2, 1}, ids(stale))
	assert.Equal(t, []int64{2, 1}, ids(e.sync.List()))
}

func TestRemove_StaleFetchDoesNotResurrect(t *testing.T) {
	e := newEnv(t, nil)
	for range 3 {
		e.fake.AddOrder("x", 100)
	}

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	// A fetch computes its answer before the delete, and lands after it.
	gate := e.fake.HoldNext(fakeapi.RouteListOrders)
	defer gate.Release()

	done := make(chan []api.Order, 1)

	go func() {
		orders, err := e.sync.Fetch(context.Background())
		assert.NoError(t, err)
		done <- orders
	}()

	<-gate.Started()

	require.NoError(t, e.sync.Remove(context.Background(), 2))
	assert.Equal(t, []int64{3, 1}, ids(e.sync.List()))

	gate.Release()
	orders := <-done

	assert.Equal(t, []int64{3, 1}, ids(orders))
	assert.Equal(t, []int64{3, 1}, ids(e.sync.List()))

	// A fetch started after the delete trusts the server.
	orders, err = e.sync.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids(orders))
	assert.Empty(t, e.sync.confirmed)
}

func TestUpdate_StaleFetchDoesNotRollBack(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)
	e.fake.AddOrder("Luis", 500)

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	// The held fetch has already read the list without the new destination.
	gate := e.fake.HoldNext(fakeapi.RouteListOrders)
	defer gate.Release()

	done := make(chan []api.Order, 1)

	go func() {
		orders, err := e.sync.Fetch(context.Background())
		assert.NoError(t, err)
		done <- orders
	}()

	<-gate.Started()

	dest := "Oaxaca"
	_, err = e.sync.Update(context.Background(), 1, api.OrderPatch{Destination: &dest})
	require.NoError(t, err)

	gate.Release()
	orders := <-done

	assert.Equal(t, []int64{2, 1}, ids(orders))
	require.NotNil(t, orders[1].Destination)
	assert.Equal(t, "Oaxaca", *orders[1].Destination)

	local, ok := e.sync.Get(1)
	require.True(t, ok)
	require.NotNil(t, local.Destination)
	assert.Equal(t, "Oaxaca", *local.Destination)
	assert.Nil(t, mustGet(t, e.sync, 2).Destination)
}

func mustGet(t *testing.T, s *Sync, id int64) api.Order {
	t.Helper()

	o, ok := s.Get(id)
	require.True(t, ok)

	return o
}

func TestRemove_FailureLeavesList(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	e.fake.FailNext(fakeapi.RouteDeleteOrder, http.StatusInternalServerError, "database locked")

	err = e.sync.Remove(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, api.KindServer, api.KindOf(err))
	assert.Equal(t, []int64{1}, ids(e.sync.List()))
}

func TestUpdate_AdoptsServerResponse(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	dest := "Guadalajara"
	o, err := e.sync.Update(context.Background(), 1, api.OrderPatch{Destination: &dest})
	require.NoError(t, err)
	require.NotNil(t, o.Destination)
	assert.Equal(t, "Guadalajara", *o.Destination)

	local, ok := e.sync.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Guadalajara", *local.Destination)
	assert.InDelta(t, 1000, *local.Total, 0.001)
}

func TestUpdate_EmptyPatchIsValidation(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.sync.Update(context.Background(), 1, api.OrderPatch{})
	require.Error(t, err)
	assert.Equal(t, api.KindValidation, api.KindOf(err))
	assert.Equal(t, 0, e.fake.Calls(fakeapi.RouteUpdateOrder))
}

func TestToggleDiscount_RefetchesServerTotals(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	_, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	before := e.fake.Calls(fakeapi.RouteListOrders)

	orders, err := e.sync.ToggleDiscount(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, before+1, e.fake.Calls(fakeapi.RouteListOrders))
	assert.InDelta(t, 100, *orders[0].Discount, 0.001)
	assert.InDelta(t, 900, *orders[0].Total, 0.001)
	assert.InDelta(t, 900, *orders[0].Balance, 0.001)
}

func TestAddPayment_RefetchesServerTotals(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	orders, err := e.sync.AddPayment(context.Background(), 1, 400)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 400, *orders[0].Paid, 0.001)
	assert.InDelta(t, 600, *orders[0].Balance, 0.001)
	assert.NotNil(t, orders[0].PaymentDate)
}

func TestAddPayment_NonPositiveIsValidation(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	_, err := e.sync.AddPayment(context.Background(), 1, 0)
	require.Error(t, err)
	assert.Equal(t, api.KindValidation, api.KindOf(err))
	assert.Equal(t, 0, e.fake.Calls(fakeapi.RouteAddPayment))
}

func TestToDocument(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("Ana", 1000)

	orders, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	doc, err := e.sync.ToDocument(context.Background(), orders[0])
	require.NoError(t, err)
	assert.Contains(t, string(doc), "%PDF")
	assert.Contains(t, string(doc), "order 1 for Ana")
}

func TestExport(t *testing.T) {
	e := newEnv(t, nil)
	for range 5 {
		e.fake.AddOrder("x", 100)
	}

	orders, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "pdfs")
	e.fake.FailNext(fakeapi.RouteFromOrder, http.StatusInternalServerError, "render failed")

	report, err := e.sync.Export(context.Background(), orders, dir, 2)
	require.NoError(t, err)
	assert.Len(t, report.Written, 4)
	require.Len(t, report.Failed, 1)

	for _, p := range report.Written {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Contains(t, string(data), "%PDF")
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestExport_UnauthorizedStops(t *testing.T) {
	e := newEnv(t, nil)
	e.fake.AddOrder("x", 100)

	orders, err := e.sync.Fetch(context.Background())
	require.NoError(t, err)

	e.fake.RevokeAll()

	_, err = e.sync.Export(context.Background(), orders, t.TempDir(), 1)
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "order_42.pdf", FileName(42))
}
