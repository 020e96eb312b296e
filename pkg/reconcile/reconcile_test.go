package reconcile_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"paygate/app/models/ordermapping"
	"paygate/app/models/transaction"
	"paygate/app/repositories"
	"paygate/pkg/notify"
	"paygate/pkg/payment"
	"paygate/pkg/payment/factory"
	"paygate/pkg/payment/types"
	"paygate/pkg/reconcile"
	"paygate/pkg/risk"
	"paygate/pkg/testutil"
)

const (
	testToken  = "internal-token"
	testSecret = "callback-secret"
)

type successGateway struct {
	method types.Method
}

func (g successGateway) Method() types.Method { return g.method }

func (g successGateway) CreatePayment(_ context.Context, a types.Attempt) (*types.Result, error) {
	return &types.Result{
		Outcome:           types.OutcomeSuccess,
		Method:            g.method,
		ProviderPaymentNo: "STUB_" + a.TransactionNo,
		Timestamp:         time.Now().UTC(),
	}, nil
}

func (g successGateway) VerifySignature(map[string]string, string) bool { return true }

// externalSystem 模拟外部订单系统的状态接收接口
type externalSystem struct {
	server  *httptest.Server
	fail    atomic.Bool
	hits    atomic.Int32
	mu      sync.Mutex
	updates []reconcile.StatusUpdate
}

func newExternalSystem(t *testing.T) *externalSystem {
	ext := &externalSystem{}
	ext.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext.hits.Add(1)
		if r.Header.Get("X-Internal-Token") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if ext.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":500,"message":"boom"}`))
			return
		}

		var update reconcile.StatusUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ext.mu.Lock()
		ext.updates = append(ext.updates, update)
		ext.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"message":"ok"}`))
	}))
	t.Cleanup(ext.server.Close)
	return ext
}

func (e *externalSystem) received() []reconcile.StatusUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]reconcile.StatusUpdate(nil), e.updates...)
}

type fixture struct {
	db       *gorm.DB
	payments *payment.Service
	svc      *reconcile.Service
	ext      *externalSystem
	mappings *repositories.OrderMappingRepository
}

func newFixture(t *testing.T, verify bool, opts ...func(*reconcile.Config)) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	var gateways []types.Gateway
	for _, m := range types.Methods {
		gateways = append(gateways, successGateway{method: m})
	}
	scorer := risk.NewScorer(risk.Config{
		MaxAmount:             decimal.NewFromInt(50000),
		MaxHourlyTransactions: 1000,
		MaxFailedAttempts:     1000,
		SmallAmount:           decimal.NewFromInt(100),
	}, repositories.NewTransactionRepository(db))
	payments := payment.NewService(db, payment.Config{}, factory.NewRegistry(gateways...), scorer, notify.LogNotifier{})

	ext := newExternalSystem(t)
	cfg := reconcile.Config{
		OrderUpdateURL:  ext.server.URL + "/api/v1/orders/update-status",
		InternalToken:   testToken,
		Timeout:         time.Second,
		MaxRetries:      2,
		RetryInterval:   5 * time.Millisecond,
		CallbackSecret:  testSecret,
		VerifySignature: verify,
		BaseURL:         "http://pay.local/",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc := reconcile.NewService(db, cfg, payments, nil)

	return &fixture{
		db:       db,
		payments: payments,
		svc:      svc,
		ext:      ext,
		mappings: repositories.NewOrderMappingRepository(db),
	}
}

func (f *fixture) request(orderID string) reconcile.CreateRequest {
	return reconcile.CreateRequest{
		ExternalOrderID: orderID,
		UserID:          42,
		Amount:          decimal.RequireFromString("100.00"),
		Method:          types.MethodWechat,
		Description:     "Booking " + orderID,
		NotifyURL:       "http://booking.local/notify",
		IP:              "127.0.0.1",
	}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestRequestCreateIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.svc.RequestCreate(ctx, f.request("ORD-1"))
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.Regexp(t, `^PAY-`, first.PaymentID)
	assert.Equal(t, "ORD-1", first.OrderID)
	assert.Equal(t, reconcile.StatusPending, first.Status)
	assert.Equal(t, "http://pay.local/pay?transaction_no="+first.TransactionNo, first.PaymentURL)
	assert.True(t, first.ExpireTime.After(time.Now()))

	second, err := f.svc.RequestCreate(ctx, f.request("ORD-1"))
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.TransactionNo, second.TransactionNo)

	assert.EqualValues(t, 1, countRows(t, f.db, &transaction.Transaction{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &ordermapping.OrderMapping{}))

	other, err := f.svc.RequestCreate(ctx, f.request("ORD-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, other.PaymentID)
}

func TestRequestCreateConcurrent(t *testing.T) {
	f := newFixture(t, false)

	const workers = 8
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RequestCreate(context.Background(), f.request("ORD-CONCURRENT"))
			if assert.NoError(t, err) {
				ids <- res.PaymentID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var paymentID string
	for id := range ids {
		if paymentID == "" {
			paymentID = id
		}
		assert.Equal(t, paymentID, id)
	}
	assert.EqualValues(t, 1, countRows(t, f.db, &transaction.Transaction{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &ordermapping.OrderMapping{}))
}

func TestRequestCreateRequiresOrderID(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RequestCreate(context.Background(), f.request("  "))
	assert.ErrorIs(t, err, payment.ErrValidation)
}

func TestCallbackDeliversOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-1"))
	require.NoError(t, err)

	result, err := f.svc.ReceiveCallback(ctx, reconcile.Callback{
		PaymentID: created.PaymentID,
		Status:    "SUCCESS",
		Raw:       map[string]interface{}{"paymentId": created.PaymentID, "status": "SUCCESS"},
	})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Delivered)
	assert.Equal(t, reconcile.StatusPaid, result.Status)

	updates := f.ext.received()
	require.Len(t, updates, 1)
	assert.Equal(t, "ORD-1", updates[0].OrderID)
	assert.Equal(t, reconcile.StatusPaid, updates[0].Status)
	assert.Equal(t, created.PaymentID, updates[0].PaymentID)
	assert.NotEmpty(t, updates[0].PaymentTime)

	txn, err := f.payments.Get(ctx, created.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, txn.Status)
	before := txn.UpdatedAt

	mapping, err := f.mappings.GetByPaymentID(ctx, created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ordermapping.DeliverySuccess, mapping.DeliveryStatus)
	assert.Equal(t, 1, mapping.DeliveryAttempts)
	assert.NotNil(t, mapping.DeliveredAt)

	// 重复回调不修改任何数据，也不再推送
	dup, err := f.svc.ReceiveCallback(ctx, reconcile.Callback{PaymentID: created.PaymentID, Status: "FAILED"})
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Len(t, f.ext.received(), 1)

	txn, err = f.payments.Get(ctx, created.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, txn.Status)
	assert.True(t, before.Equal(txn.UpdatedAt))
}

func TestCallbackUnknownPayment(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.ReceiveCallback(context.Background(), reconcile.Callback{PaymentID: "PAY-NOPE", Status: "SUCCESS"})
	assert.ErrorIs(t, err, reconcile.ErrNotFound)

	_, err = f.svc.ReceiveCallback(context.Background(), reconcile.Callback{Status: "SUCCESS"})
	assert.ErrorIs(t, err, payment.ErrValidation)
}

func TestCallbackSignature(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-SIG"))
	require.NoError(t, err)

	fields := map[string]string{"paymentId": created.PaymentID, "status": "SUCCESS"}

	_, err = f.svc.ReceiveCallback(ctx, reconcile.Callback{
		PaymentID: created.PaymentID,
		Status:    "SUCCESS",
		Signature: "0123456789ABCDEF0123456789ABCDEF",
		Fields:    fields,
	})
	assert.ErrorIs(t, err, reconcile.ErrInvalidSignature)

	txn, err := f.payments.Get(ctx, created.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, txn.Status, "rejected callback must not change state")
	assert.Empty(t, f.ext.received())

	signed := map[string]string{"paymentId": created.PaymentID, "status": "SUCCESS"}
	signed["signature"] = reconcile.SignCallback(signed, testSecret)
	result, err := f.svc.ReceiveCallback(ctx, reconcile.Callback{
		PaymentID: created.PaymentID,
		Status:    "SUCCESS",
		Signature: signed["signature"],
		Fields:    signed,
	})
	require.NoError(t, err)
	assert.True(t, result.Delivered)
}

func TestCallbackDeliveryExhausted(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.ext.fail.Store(true)

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-DOWN"))
	require.NoError(t, err)

	result, err := f.svc.ReceiveCallback(ctx, reconcile.Callback{PaymentID: created.PaymentID, Status: "SUCCESS"})
	require.NoError(t, err, "local processing succeeds even if delivery fails")
	assert.False(t, result.Delivered)
	assert.EqualValues(t, 3, f.ext.hits.Load(), "first attempt plus two retries")

	mapping, err := f.mappings.GetByPaymentID(ctx, created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ordermapping.DeliveryFailed, mapping.DeliveryStatus)
	assert.True(t, mapping.NeedsManual)
	assert.Equal(t, 3, mapping.DeliveryAttempts)
	assert.Contains(t, mapping.DeliveryResponse, "boom")

	txn, err := f.payments.Get(ctx, created.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, txn.Status)

	pending, total, err := f.svc.ListUndelivered(ctx, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, created.PaymentID, pending[0].PaymentID)

	// 外部系统恢复后人工重推
	f.ext.fail.Store(false)
	delivered, err := f.svc.Redeliver(ctx, created.PaymentID)
	require.NoError(t, err)
	assert.True(t, delivered)

	mapping, err = f.mappings.GetByPaymentID(ctx, created.PaymentID)
	require.NoError(t, err)
	assert.False(t, mapping.NeedsManual)
	assert.Equal(t, 4, mapping.DeliveryAttempts)

	_, total, err = f.svc.ListUndelivered(ctx, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCallbackAfterFailedDeliveryIsReprocessed(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.ext.fail.Store(true)

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-AGAIN"))
	require.NoError(t, err)
	_, err = f.svc.ReceiveCallback(ctx, reconcile.Callback{PaymentID: created.PaymentID, Status: "SUCCESS"})
	require.NoError(t, err)

	f.ext.fail.Store(false)
	result, err := f.svc.ReceiveCallback(ctx, reconcile.Callback{PaymentID: created.PaymentID, Status: "SUCCESS"})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Delivered)
}

func TestProcessDeliversTerminalStatus(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-PROC"))
	require.NoError(t, err)

	_, err = f.payments.Process(ctx, created.TransactionNo)
	require.NoError(t, err)

	updates := f.ext.received()
	require.Len(t, updates, 1)
	assert.Equal(t, reconcile.StatusPaid, updates[0].Status)

	view, err := f.svc.Query(ctx, created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusSuccess, view.Status)
	assert.Equal(t, 100.0, view.Amount)
	assert.Equal(t, 100.0, view.PaidAmount)
	assert.NotNil(t, view.PaidTime)
	assert.Equal(t, "WECHAT", view.PaymentMethod)
	assert.Nil(t, view.FailReason)
}

func TestCancelDeliversCancelled(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-CANCEL"))
	require.NoError(t, err)

	result, err := f.svc.Cancel(ctx, created.PaymentID, "booking cancelled")
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCancelled, result.Status)
	assert.True(t, result.Delivered)

	updates := f.ext.received()
	require.Len(t, updates, 1)
	assert.Equal(t, reconcile.StatusCancelled, updates[0].Status)

	view, err := f.svc.Query(ctx, created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCancelled, view.Status)

	_, err = f.svc.Cancel(ctx, created.PaymentID, "")
	assert.ErrorIs(t, err, payment.ErrNotCancelable)
	assert.Len(t, f.ext.received(), 1)
}

func TestTimeoutDeliversCancelled(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-SLOW"))
	require.NoError(t, err)

	// 把创建时间拨回超时之前
	require.NoError(t, f.db.Model(&transaction.Transaction{}).
		Where("transaction_no = ?", created.TransactionNo).
		Update("created_at", time.Now().UTC().Add(-time.Hour)).Error)

	swept, err := f.payments.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	updates := f.ext.received()
	require.Len(t, updates, 1)
	assert.Equal(t, reconcile.StatusCancelled, updates[0].Status)
}

func TestRequestCreateQRCode(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-QR"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.QRCode, "data:image/png;base64,"))
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(created.QRCode, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	again, err := f.svc.RequestCreate(ctx, f.request("ORD-QR"))
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, created.QRCode, again.QRCode)

	card := f.request("ORD-CARD")
	card.Method = types.MethodBankCard
	created, err = f.svc.RequestCreate(ctx, card)
	require.NoError(t, err)
	assert.Empty(t, created.QRCode)
}

func TestSweepDeliveryKeepsFullRetryBudget(t *testing.T) {
	f := newFixture(t, false, func(cfg *reconcile.Config) {
		cfg.RetryInterval = 60 * time.Millisecond
	})
	f.ext.fail.Store(true)

	var paymentIDs []string
	for _, order := range []string{"ORD-A", "ORD-B", "ORD-C"} {
		created, err := f.svc.RequestCreate(context.Background(), f.request(order))
		require.NoError(t, err)
		paymentIDs = append(paymentIDs, created.PaymentID)
	}
	require.NoError(t, f.db.Model(&transaction.Transaction{}).
		Where("1 = 1").
		Update("created_at", time.Now().UTC().Add(-time.Hour)).Error)

	// 扫描时限短于一笔推送的重试总耗时
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	swept, err := f.payments.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, swept)
	assert.EqualValues(t, 9, f.ext.hits.Load(), "each order gets the first attempt plus two retries")

	for _, id := range paymentIDs {
		mapping, err := f.mappings.GetByPaymentID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 3, mapping.DeliveryAttempts, id)
		assert.True(t, mapping.NeedsManual, id)

		view, err := f.svc.Query(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, reconcile.StatusCancelled, view.Status, id)
	}
}

func TestQueryUnknownPayment(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Query(context.Background(), "PAY-UNKNOWN")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestRedeliverRequiresTerminalStatus(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.svc.RequestCreate(ctx, f.request("ORD-OPEN"))
	require.NoError(t, err)

	_, err = f.svc.Redeliver(ctx, created.PaymentID)
	assert.ErrorIs(t, err, payment.ErrStateConflict)
	assert.Zero(t, f.ext.hits.Load())
}

func TestStatusMappings(t *testing.T) {
	cases := []struct {
		status    transaction.Status
		delivery  string
		terminal  bool
		queryView string
	}{
		{transaction.StatusPending, "", false, reconcile.StatusPending},
		{transaction.StatusProcessing, "", false, reconcile.StatusPending},
		{transaction.StatusSuccess, reconcile.StatusPaid, true, reconcile.StatusSuccess},
		{transaction.StatusFailed, reconcile.StatusFailed, true, reconcile.StatusFailed},
		{transaction.StatusCancelled, reconcile.StatusCancelled, true, reconcile.StatusCancelled},
		{transaction.StatusTimeout, reconcile.StatusCancelled, true, reconcile.StatusCancelled},
	}
	for _, tc := range cases {
		got, ok := reconcile.DeliveryStatus(tc.status)
		assert.Equal(t, tc.terminal, ok, tc.status)
		assert.Equal(t, tc.delivery, got, tc.status)
		assert.Equal(t, tc.queryView, reconcile.QueryStatus(tc.status), tc.status)
	}
}
