package payment_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"paygate/app/models/transaction"
	"paygate/app/repositories"
	"paygate/pkg/notify"
	"paygate/pkg/payment"
	"paygate/pkg/payment/factory"
	"paygate/pkg/payment/types"
	"paygate/pkg/risk"
	"paygate/pkg/testutil"
)

// stubGateway 固定返回指定结果的渠道
type stubGateway struct {
	method  types.Method
	delay   time.Duration
	calls   atomic.Int32
	mu      sync.Mutex
	outcome types.Outcome
}

func (g *stubGateway) Method() types.Method { return g.method }

func (g *stubGateway) CreatePayment(ctx context.Context, attempt types.Attempt) (*types.Result, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	outcome := g.outcome
	g.mu.Unlock()

	result := &types.Result{
		Outcome:   outcome,
		Method:    g.method,
		Signature: "STUBSIG",
		Timestamp: time.Now().UTC(),
	}
	switch outcome {
	case types.OutcomeSuccess:
		result.ProviderPaymentNo = "STUB_" + attempt.TransactionNo
	case types.OutcomeFailed:
		result.ErrorCode = "STUB_DECLINED"
		result.ErrorMessage = "declined by stub"
	case types.OutcomePending:
		result.PaymentURL = "https://pay.example.com/" + attempt.TransactionNo
	}
	return result, nil
}

// VerifySignature 接受 STUBSIG，签名字段本身不应参与验签
func (g *stubGateway) VerifySignature(fields map[string]string, signature string) bool {
	_, signed := fields["sign"]
	return signature == "STUBSIG" && !signed
}

func (g *stubGateway) setOutcome(o types.Outcome) {
	g.mu.Lock()
	g.outcome = o
	g.mu.Unlock()
}

// recordingNotifier 记录全部通知事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds(transactionNo string) []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, e := range n.events {
		if e.TransactionNo == transactionNo {
			out = append(out, e.Kind)
		}
	}
	return out
}

// recordingObserver 记录终态回调
type recordingObserver struct {
	mu    sync.Mutex
	calls []transaction.Status
}

func (o *recordingObserver) OnTerminal(_ context.Context, txn *transaction.Transaction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, txn.Status)
}

func (o *recordingObserver) statuses() []transaction.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]transaction.Status(nil), o.calls...)
}

// clock 可调整的时间
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	db       *gorm.DB
	svc      *payment.Service
	gateway  *stubGateway
	notifier *recordingNotifier
	observer *recordingObserver
}

func newFixture(t *testing.T, outcome types.Outcome, opts ...payment.Option) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	gw := &stubGateway{method: types.MethodAlipay, outcome: outcome}
	others := []types.Gateway{gw}
	for _, m := range []types.Method{types.MethodWechat, types.MethodBankCard, types.MethodCreditCard} {
		others = append(others, &stubGateway{method: m, outcome: types.OutcomeSuccess})
	}

	scorer := risk.NewScorer(risk.Config{
		MaxAmount:             decimal.NewFromInt(50000),
		MaxHourlyTransactions: 1000,
		MaxFailedAttempts:     1000,
		SmallAmount:           decimal.NewFromInt(100),
	}, repositories.NewTransactionRepository(db))

	notifier := &recordingNotifier{}
	svc := payment.NewService(db, payment.Config{RetryLimit: 3, Timeout: 15 * time.Minute},
		factory.NewRegistry(others...), scorer, notifier, opts...)

	observer := &recordingObserver{}
	svc.Subscribe(observer)

	return &fixture{db: db, svc: svc, gateway: gw, notifier: notifier, observer: observer}
}

func (f *fixture) create(t *testing.T, amount string) *transaction.Transaction {
	t.Helper()
	txn, err := f.svc.Create(context.Background(), payment.CreateRequest{
		UserID:      7,
		Amount:      decimal.RequireFromString(amount),
		Method:      types.MethodAlipay,
		Description: "Test Order",
		IP:          "127.0.0.1",
		UserAgent:   "go-test",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return txn
}
