package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/internal/testutil"
	"paycore/pkg/payment"
)

// cardOrder seeds order O1 (5 lamps at 50, total 250) with a PENDING card intent.
func cardOrder(t *testing.T) (*fixture, *fakeGateway, *models.Product) {
	t.Helper()
	return loggedCardOrder(t, nil)
}

func loggedCardOrder(t *testing.T, log *zap.Logger) (*fixture, *fakeGateway, *models.Product) {
	t.Helper()
	card := newFakeGateway(domain.ProviderCard)
	f := newFixture(t, testPaymentConfig(), log, card)
	testutil.SeedSetting(t, f.db, domain.ProviderCard, true, cardSettings())
	lamp := testutil.SeedProduct(t, f.db, "LAMP", 10)
	testutil.SeedOrder(t, f.db, "O1", "card", 5, lamp)
	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{OrderID: "O1", UserID: 7, Provider: domain.ProviderCard})
	require.NoError(t, err)
	return f, card, lamp
}

func TestReconcilePaidAppliesProjectionOnce(t *testing.T) {
	ctx := context.Background()
	f, _, lamp := cardOrder(t)
	ev := &payment.Event{ExternalID: "ext_O1", OrderRef: "O1", Paid: true, Terminal: true, RawStatus: "complete"}

	out, err := f.svc.Reconcile(ctx, domain.ProviderCard, ev)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)
	assert.Equal(t, domain.StatusCompleted, out.Status)

	out, err = f.svc.Reconcile(ctx, domain.ProviderCard, ev)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, out.Result)

	p := f.intent(t, "O1")
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.NotNil(t, p.CompletedAt)
	assert.NotNil(t, p.OrderSyncedAt)
	assert.Equal(t, "complete", p.ProviderStatus)

	o := f.order(t, "O1")
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, o.OrderStatus)
	assert.NotNil(t, o.PaidAt)

	stock, sales := testutil.Stock(t, f.db, lamp.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 5, sales)

	assert.Equal(t, []string{"payment_intent.pending", "payment_intent.completed"}, f.published.types())
}

func TestReconcileConcurrentPaidSignals(t *testing.T) {
	f, _, lamp := cardOrder(t)
	ev := &payment.Event{ExternalID: "ext_O1", OrderRef: "O1", Paid: true, Terminal: true, RawStatus: "complete"}

	const callers = 8
	results := make([]Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.svc.Reconcile(context.Background(), domain.ProviderCard, ev)
			if assert.NoError(t, err) {
				results[i] = out.Result
			}
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		if r == ResultApplied {
			applied++
		} else {
			assert.Equal(t, ResultDuplicate, r)
		}
	}
	assert.Equal(t, 1, applied)

	stock, sales := testutil.Stock(t, f.db, lamp.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 5, sales)
}

func TestReconcileFallsBackToOrderReference(t *testing.T) {
	f, _, _ := cardOrder(t)

	out, err := f.svc.Reconcile(context.Background(), domain.ProviderCard,
		&payment.Event{OrderRef: "O1", Paid: true, Terminal: true, RawStatus: "paid"})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)

	// an event naming another charge for the same order is not ours
	out, err = f.svc.Reconcile(context.Background(), domain.ProviderCard,
		&payment.Event{ExternalID: "ext_other", OrderRef: "O1", Paid: true, Terminal: true})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, out.Result)
}

func TestReconcileUnknownIntentIsIgnored(t *testing.T) {
	f, _, _ := cardOrder(t)
	out, err := f.svc.Reconcile(context.Background(), domain.ProviderCard,
		&payment.Event{ExternalID: "ext_nobody", Paid: true, Terminal: true})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, out.Result)

	// same external id but a different provider
	out, err = f.svc.Reconcile(context.Background(), domain.ProviderTabby,
		&payment.Event{ExternalID: "ext_O1", OrderRef: "O1", Paid: true, Terminal: true})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, out.Result)
	assert.Equal(t, domain.StatusPending, f.intent(t, "O1").Status)
}

func TestReconcileFailure(t *testing.T) {
	ctx := context.Background()
	f, _, lamp := cardOrder(t)

	out, err := f.svc.Reconcile(ctx, domain.ProviderCard,
		&payment.Event{ExternalID: "ext_O1", Terminal: true, RawStatus: "expired"})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)

	p := f.intent(t, "O1")
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Equal(t, "expired", p.MetaString(domain.MetaFailureStatus))
	assert.NotNil(t, p.OrderSyncedAt)

	o := f.order(t, "O1")
	assert.Equal(t, domain.PaymentStatusFailed, o.PaymentStatus)
	assert.Equal(t, domain.OrderStatusCancelled, o.OrderStatus)

	// a late paid signal cannot revive a failed intent
	out, err = f.svc.Reconcile(ctx, domain.ProviderCard,
		&payment.Event{ExternalID: "ext_O1", Paid: true, Terminal: true, RawStatus: "complete"})
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, out.Result)
	assert.Equal(t, domain.StatusFailed, f.intent(t, "O1").Status)

	stock, sales := testutil.Stock(t, f.db, lamp.ID)
	assert.Equal(t, 10, stock)
	assert.Zero(t, sales)
}

func TestReconcileReplaysUnsyncedCompletion(t *testing.T) {
	ctx := context.Background()
	f, _, lamp := cardOrder(t)
	p := f.intent(t, "O1")

	// the transition committed but the projection transaction did not
	moved, err := f.intents.Transition(ctx, p.ID, domain.Sources(domain.StatusCompleted), domain.StatusCompleted, nil)
	require.NoError(t, err)
	require.True(t, moved)

	out, err := f.svc.Reconcile(ctx, domain.ProviderCard,
		&payment.Event{ExternalID: "ext_O1", Paid: true, Terminal: true})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)

	assert.NotNil(t, f.intent(t, "O1").OrderSyncedAt)
	assert.Equal(t, domain.PaymentStatusPaid, f.order(t, "O1").PaymentStatus)
	stock, _ := testutil.Stock(t, f.db, lamp.ID)
	assert.Equal(t, 5, stock)
}

func TestReplayProjections(t *testing.T) {
	ctx := context.Background()
	f, _, lamp := cardOrder(t)
	p := f.intent(t, "O1")
	_, err := f.intents.Transition(ctx, p.ID, domain.Sources(domain.StatusCompleted), domain.StatusCompleted, nil)
	require.NoError(t, err)

	report, err := f.svc.ReplayProjections(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Replayed)
	assert.Empty(t, report.Failed)

	report, err = f.svc.ReplayProjections(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	stock, _ := testutil.Stock(t, f.db, lamp.ID)
	assert.Equal(t, 5, stock)
}

func TestReconcileInProgressAuthorises(t *testing.T) {
	ctx := context.Background()
	bnpl := &fakeBNPL{fakeGateway: newFakeGateway(domain.ProviderTamara)}
	f := newFixture(t, testPaymentConfig(), nil, bnpl)
	testutil.SeedSetting(t, f.db, domain.ProviderTamara, true, map[string]any{"apiToken": "tok"})
	lamp := testutil.SeedProduct(t, f.db, "LAMP", 10)
	testutil.SeedOrder(t, f.db, "O3", "tamara", 2, lamp)
	_, err := f.svc.CreateIntent(ctx, CreateIntentInput{OrderID: "O3", UserID: 7, Provider: domain.ProviderTamara})
	require.NoError(t, err)

	approved := &payment.Event{ExternalID: "ext_O3", InProgress: true, RawStatus: "approved"}

	// authorisation not yet accepted: the intent waits in PROCESSING
	out, err := f.svc.Reconcile(ctx, domain.ProviderTamara, approved)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)
	assert.Equal(t, domain.StatusProcessing, f.intent(t, "O3").Status)

	bnpl.authorize = true
	out, err = f.svc.Reconcile(ctx, domain.ProviderTamara, approved)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, 2, bnpl.authorized)

	stock, sales := testutil.Stock(t, f.db, lamp.ID)
	assert.Equal(t, 8, stock)
	assert.Equal(t, 2, sales)
}

func TestVerifyByOrder(t *testing.T) {
	ctx := context.Background()
	f, card, _ := cardOrder(t)

	card.status = payment.StatusResult{InProgress: false, Status: "open"}
	p, err := f.svc.VerifyByOrder(ctx, "O1", 7, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, "open", p.ProviderStatus)

	_, err = f.svc.VerifyByOrder(ctx, "O1", 8, false)
	assert.Error(t, err)

	card.status = payment.StatusResult{Paid: true, Terminal: true, Status: "complete", Amount: decimal.NewFromInt(250)}
	p, err = f.svc.VerifyByExternalID(ctx, domain.ProviderCard, "ext_O1", 7, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.Equal(t, domain.PaymentStatusPaid, f.order(t, "O1").PaymentStatus)

	// admins can verify any order
	p, err = f.svc.VerifyByOrder(ctx, "O1", 1, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, p.Status)
}

func TestReconcilePaidSignalAfterClose(t *testing.T) {
	ctx := context.Background()
	paid := &payment.Event{ExternalID: "ext_O1", Paid: true, Terminal: true, RawStatus: "complete"}

	t.Run("refunded intent treats redelivery as duplicate", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		f, _, _ := loggedCardOrder(t, zap.New(core))
		_, err := f.svc.Reconcile(ctx, domain.ProviderCard, paid)
		require.NoError(t, err)
		_, err = f.svc.Refund(ctx, "O1", decimal.Zero, "returned")
		require.NoError(t, err)

		out, err := f.svc.Reconcile(ctx, domain.ProviderCard, paid)
		require.NoError(t, err)
		assert.Equal(t, ResultDuplicate, out.Result)
		assert.Equal(t, domain.StatusRefunded, f.intent(t, "O1").Status)
		assert.Zero(t, logs.Len())
	})

	t.Run("failed intent needs follow-up", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		f, _, _ := loggedCardOrder(t, zap.New(core))
		_, err := f.svc.Reconcile(ctx, domain.ProviderCard,
			&payment.Event{ExternalID: "ext_O1", Terminal: true, RawStatus: "expired"})
		require.NoError(t, err)

		out, err := f.svc.Reconcile(ctx, domain.ProviderCard, paid)
		require.NoError(t, err)
		assert.Equal(t, ResultNoop, out.Result)
		assert.Equal(t, domain.StatusFailed, f.intent(t, "O1").Status)
		assert.Equal(t, 1, logs.FilterMessage("paid signal for closed intent").Len())
	})
}
