package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "paygate/app/http/controllers/api/v1"
	"paygate/app/http/controllers/api/v1/admin"
	paymentctl "paygate/app/http/controllers/api/v1/payment"
	"paygate/app/repositories"
	"paygate/pkg/notify"
	"paygate/pkg/payment"
	"paygate/pkg/payment/factory"
	"paygate/pkg/payment/types"
	"paygate/pkg/reconcile"
	"paygate/pkg/risk"
	"paygate/pkg/testutil"
	"paygate/routes"
)

const adminToken = "admin-secret"

type okGateway struct {
	method types.Method
}

func (g okGateway) Method() types.Method { return g.method }

func (g okGateway) CreatePayment(_ context.Context, a types.Attempt) (*types.Result, error) {
	return &types.Result{
		Outcome:           types.OutcomeSuccess,
		Method:            g.method,
		ProviderPaymentNo: "OK_" + a.TransactionNo,
		Timestamp:         time.Now().UTC(),
	}, nil
}

// VerifySignature 只认固定签名，并要求 sign 字段已被剔除
func (g okGateway) VerifySignature(fields map[string]string, signature string) bool {
	_, hasSign := fields["sign"]
	return signature == "valid-sign" && !hasSign
}

type envelope struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

type server struct {
	router     *gin.Engine
	deliveries atomic.Int32
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &server{}
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.deliveries.Add(1)
		_, _ = w.Write([]byte(`{"code":200,"message":"ok"}`))
	}))
	t.Cleanup(external.Close)

	db := testutil.NewDB(t)
	var gateways []types.Gateway
	for _, m := range types.Methods {
		gateways = append(gateways, okGateway{method: m})
	}
	scorer := risk.NewScorer(risk.Config{
		MaxAmount:             decimal.NewFromInt(50000),
		MaxHourlyTransactions: 1000,
		MaxFailedAttempts:     1000,
		SmallAmount:           decimal.NewFromInt(100),
	}, repositories.NewTransactionRepository(db))
	payments := payment.NewService(db, payment.Config{}, factory.NewRegistry(gateways...), scorer, notify.LogNotifier{})
	reconciler := reconcile.NewService(db, reconcile.Config{
		OrderUpdateURL: external.URL,
		InternalToken:  "tok",
		MaxRetries:     1,
		RetryInterval:  time.Millisecond,
		BaseURL:        "http://pay.local",
	}, payments, nil)

	s.router = gin.New()
	routes.RegisterAPIRoutes(s.router, routes.Controllers{
		Payment:       paymentctl.NewPaymentController(payments, reconciler),
		Delivery:      admin.NewDeliveryController(reconciler),
		Health:        v1.NewHealthController(db, nil, nil),
		InternalToken: adminToken,
	})
	return s
}

func (s *server) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *server) form(t *testing.T, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestPaymentLifecycle(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, "POST", "/v1/payments/create", gin.H{
		"userId":        7,
		"amount":        "100.50",
		"paymentMethod": "ALIPAY",
		"description":   "Test Order",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, 200, env.Code)
	transactionNo, _ := env.Data["transactionNo"].(string)
	require.NotEmpty(t, transactionNo)
	assert.Equal(t, "100.50", env.Data["amount"])
	assert.Equal(t, "PENDING", env.Data["status"])
	assert.True(t, strings.HasSuffix(env.Data["payUrl"].(string), transactionNo))

	_, env = s.do(t, "GET", "/v1/payments/query?transactionNo="+transactionNo, nil)
	assert.Equal(t, "PENDING", env.Data["status"])
	assert.EqualValues(t, 0, env.Data["attempts"])

	w, env = s.do(t, "POST", "/v1/payments/process", gin.H{"transactionNo": transactionNo})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, env.Data["success"])
	assert.Equal(t, "SUCCESS", env.Data["status"])
	assert.Equal(t, "OK_"+transactionNo, env.Data["providerPaymentNo"])

	// 已处理的交易不能再次处理或取消
	w, env = s.do(t, "POST", "/v1/payments/process", gin.H{"transactionNo": transactionNo})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 4001, env.Code)
	assert.Equal(t, "STATE_CONFLICT", env.Error)

	w, env = s.do(t, "POST", "/v1/payments/cancel", gin.H{"transactionNo": transactionNo})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CANNOT_CANCEL", env.Error)

	w, env = s.do(t, "POST", "/v1/payments/retry", gin.H{"transactionNo": transactionNo})
	assert.Equal(t, http.StatusConflict, w.Code)

	_, env = s.do(t, "GET", "/v1/users/7/transactions?page=1&pageSize=10", nil)
	assert.EqualValues(t, 1, env.Data["total"])
	items := env.Data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, transactionNo, items[0].(map[string]interface{})["transactionNo"])
}

func TestCreateValidation(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, "POST", "/v1/payments/create", gin.H{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error)
	assert.Contains(t, env.Data, "userId")
	assert.Contains(t, env.Data, "paymentMethod")

	w, env = s.do(t, "POST", "/v1/payments/create", gin.H{"userId": 7, "amount": "-1", "paymentMethod": "PAYPAL"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Data, "amount")
	assert.Contains(t, env.Data, "paymentMethod")

	req := httptest.NewRequest("POST", "/v1/payments/create", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBlockedByRisk(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, "POST", "/v1/payments/create", gin.H{
		"userId":        7,
		"amount":        "999999",
		"paymentMethod": "WECHAT",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 4003, env.Code)
	assert.Equal(t, "RISK_CONTROL_BLOCKED", env.Error)

	_, env = s.do(t, "GET", "/v1/users/7/transactions", nil)
	assert.EqualValues(t, 0, env.Data["total"])
}

func TestQueryUnknown(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, "GET", "/v1/payments/query?transactionNo=TXN_MISSING", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PAYMENT_NOT_FOUND", env.Error)

	w, env = s.do(t, "GET", "/v1/payments/query", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error)
}

func TestExternalOrderFlow(t *testing.T) {
	s := newServer(t)

	order := gin.H{
		"orderId":       "BK-1001",
		"userId":        "9",
		"amount":        88.8,
		"paymentMethod": "WECHAT",
	}
	_, env := s.do(t, "POST", "/v1/payments/create", order)
	require.Equal(t, 200, env.Code)
	paymentID := env.Data["paymentId"].(string)
	assert.Equal(t, "BK-1001", env.Data["orderId"])
	assert.Equal(t, "88.80", env.Data["amount"])
	assert.Equal(t, false, env.Data["existing"])
	qr := env.Data["qrCode"]
	assert.Regexp(t, `^data:image/png;base64,`, qr)

	_, env = s.do(t, "POST", "/v1/payments/create", order)
	assert.Equal(t, paymentID, env.Data["paymentId"])
	assert.Equal(t, true, env.Data["existing"])
	assert.Equal(t, qr, env.Data["qrCode"])

	w, env := s.do(t, "POST", "/v1/payments/callback", gin.H{"status": "SUCCESS"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, "POST", "/v1/payments/callback", gin.H{"paymentId": "PAY-NOPE", "status": "SUCCESS"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, "POST", "/v1/payments/callback", gin.H{"paymentId": paymentID, "status": "SUCCESS"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 200, env.Code)
	assert.EqualValues(t, 1, s.deliveries.Load())

	// 重复回调
	w, _ = s.do(t, "POST", "/v1/payments/callback", gin.H{"paymentId": paymentID, "status": "SUCCESS"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, s.deliveries.Load())

	_, env = s.do(t, "POST", "/v1/payments/query", gin.H{"paymentId": paymentID})
	assert.Equal(t, "SUCCESS", env.Data["status"])
	assert.Equal(t, 88.8, env.Data["paidAmount"])
	assert.Equal(t, "WECHAT", env.Data["paymentMethod"])
}

func TestCancelByPaymentID(t *testing.T) {
	s := newServer(t)

	_, env := s.do(t, "POST", "/v1/payments/create", gin.H{
		"orderId":       "BK-2002",
		"userId":        9,
		"amount":        "20",
		"paymentMethod": "UNIONPAY",
	})
	paymentID := env.Data["paymentId"].(string)

	w, env := s.do(t, "POST", "/v1/payments/cancel", gin.H{"paymentId": paymentID, "reason": "user changed mind"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", env.Data["status"])
	assert.NotEmpty(t, env.Data["cancelTime"])
	assert.EqualValues(t, 1, s.deliveries.Load())

	w, env = s.do(t, "POST", "/v1/payments/cancel", gin.H{"paymentId": paymentID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 4001, env.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, "GET", "/v1/admin/deliveries", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)

	w, _ = s.do(t, "GET", "/v1/admin/deliveries", nil, "X-Internal-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, "GET", "/v1/admin/deliveries", nil, "X-Internal-Token", adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, env.Data["total"])

	w, _ = s.do(t, "POST", "/v1/admin/deliveries/PAY-NOPE/redeliver", nil, "X-Internal-Token", adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, "GET", "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", env.Data["status"])
	checks := env.Data["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "disabled", checks["queue"])
}

func TestAlipayNotifySettlesDirectTransaction(t *testing.T) {
	s := newServer(t)

	_, env := s.do(t, "POST", "/v1/payments/create", gin.H{
		"userId":        7,
		"amount":        "66.00",
		"paymentMethod": "ALIPAY",
	})
	transactionNo := env.Data["transactionNo"].(string)

	notice := url.Values{
		"out_trade_no": {transactionNo},
		"trade_no":     {"2024ALI0001"},
		"trade_status": {"TRADE_SUCCESS"},
		"sign_type":    {"RSA2"},
		"sign":         {"forged"},
	}
	w := s.form(t, "/v1/payments/notify/alipay", notice)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, env = s.do(t, "GET", "/v1/payments/query?transactionNo="+transactionNo, nil)
	assert.Equal(t, "PENDING", env.Data["status"])

	// 尚未完成支付的通知只做确认
	notice.Set("sign", "valid-sign")
	notice.Set("trade_status", "WAIT_BUYER_PAY")
	w = s.form(t, "/v1/payments/notify/alipay", notice)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
	_, env = s.do(t, "GET", "/v1/payments/query?transactionNo="+transactionNo, nil)
	assert.Equal(t, "PENDING", env.Data["status"])

	notice.Set("trade_status", "TRADE_SUCCESS")
	w = s.form(t, "/v1/payments/notify/alipay", notice)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
	_, env = s.do(t, "GET", "/v1/payments/query?transactionNo="+transactionNo, nil)
	assert.Equal(t, "SUCCESS", env.Data["status"])

	// 渠道重发同一通知
	w = s.form(t, "/v1/payments/notify/alipay", notice)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWechatNotifyDeliversMappedOrder(t *testing.T) {
	s := newServer(t)

	_, env := s.do(t, "POST", "/v1/payments/create", gin.H{
		"orderId":       "BK-2002",
		"userId":        9,
		"amount":        "20.00",
		"paymentMethod": "WECHAT",
	})
	require.Equal(t, 200, env.Code)
	transactionNo := env.Data["transactionNo"].(string)

	w, env := s.do(t, "POST", "/v1/payments/notify/alipay", gin.H{
		"out_trade_no": transactionNo,
		"trade_status": "TRADE_SUCCESS",
		"sign":         "valid-sign",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "notice from another provider")

	w, env = s.do(t, "POST", "/v1/payments/notify/wechat", gin.H{
		"out_trade_no": transactionNo,
		"trade_state":  "SUCCESS",
		"sign":         "valid-sign",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SUCCESS", env.Data["status"])
	assert.Equal(t, true, env.Data["changed"])
	assert.EqualValues(t, 1, s.deliveries.Load())

	w, env = s.do(t, "POST", "/v1/payments/notify/wechat", gin.H{"trade_state": "SUCCESS", "sign": "valid-sign"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, "POST", "/v1/payments/notify/paypal", gin.H{"out_trade_no": transactionNo})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, 1, s.deliveries.Load())
}
