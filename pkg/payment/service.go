// Package payment 交易状态机：创建、处理、重试、取消与超时关闭
//
// 状态只通过条件更新（UPDATE ... WHERE status IN (...)）推进，
// 影响行数为 0 说明并发操作已经改变了状态，调用方会得到 ErrStateConflict。
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paygate/app/models"
	"paygate/app/models/fraudlog"
	"paygate/app/models/paymentdetail"
	"paygate/app/models/transaction"
	"paygate/app/repositories"
	"paygate/pkg/database"
	"paygate/pkg/fraudgraph"
	"paygate/pkg/logger"
	"paygate/pkg/notify"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
	"paygate/pkg/risk"
)

// 交易号冲突时的最大重新生成次数
const maxReferenceAttempts = 5

var processingOnly = []transaction.Status{transaction.StatusProcessing}

// Config 状态机配置
type Config struct {
	// Timeout 待处理/处理中的交易超过该时长会被超时关闭
	Timeout time.Duration
	// RetryLimit 单笔交易最多处理次数
	RetryLimit int
	// SweepBatch 超时扫描每批处理的条数
	SweepBatch int
}

// CreateRequest 创建交易请求
type CreateRequest struct {
	UserID      uint64
	Amount      decimal.Decimal
	Method      types.Method
	Description string
	IP          string
	UserAgent   string
}

// CreateHook 在创建交易的同一个数据库事务中执行，返回错误会回滚整个创建
type CreateHook func(tx *gorm.DB, txn *transaction.Transaction) error

// Observer 交易进入终态时被调用
type Observer interface {
	OnTerminal(ctx context.Context, txn *transaction.Transaction)
}

// Gateways 按支付方式获取渠道
type Gateways interface {
	Get(method types.Method) (types.Gateway, error)
}

// Scorer 风控评分
type Scorer interface {
	Evaluate(ctx context.Context, c risk.Candidate) *risk.Verdict
}

// ProcessResult 处理结果
type ProcessResult struct {
	Transaction *transaction.Transaction
	Gateway     *types.Result
	Attempts    int
	CanRetry    bool
}

// Option 可选配置
type Option func(*Service)

// WithFraudRecorder 风控记录同步写入图谱
func WithFraudRecorder(r fraudgraph.Recorder) Option {
	return func(s *Service) {
		s.graph = r
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service 交易状态机
type Service struct {
	db        *gorm.DB
	txns      *repositories.TransactionRepository
	fraudLogs *repositories.FraudLogRepository
	gateways  Gateways
	scorer    Scorer
	notifier  notify.Notifier
	graph     fraudgraph.Recorder
	cfg       Config
	now       func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

// NewService 创建状态机
func NewService(db *gorm.DB, cfg Config, gateways Gateways, scorer Scorer, notifier notify.Notifier, opts ...Option) *Service {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}

	s := &Service{
		db:        db,
		txns:      repositories.NewTransactionRepository(db),
		fraudLogs: repositories.NewFraudLogRepository(db),
		gateways:  gateways,
		scorer:    scorer,
		notifier:  notifier,
		graph:     fraudgraph.NopRecorder{},
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe 注册终态观察者
func (s *Service) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Config 当前配置
func (s *Service) Config() Config {
	return s.cfg
}

// Create 风控评估后创建待处理交易
func (s *Service) Create(ctx context.Context, req CreateRequest, hooks ...CreateHook) (*transaction.Transaction, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	verdict := s.scorer.Evaluate(ctx, risk.Candidate{
		UserID: req.UserID,
		Amount: req.Amount,
		IP:     req.IP,
	})

	if verdict.Action == risk.ActionBlock {
		s.recordBlocked(ctx, req, verdict)
		return nil, &risk.BlockedError{Verdict: verdict}
	}

	now := s.now()
	txn := &transaction.Transaction{
		UserID:         req.UserID,
		Amount:         req.Amount,
		PaymentMethod:  string(req.Method),
		Status:         transaction.StatusPending,
		Description:    req.Description,
		RiskLevel:      string(verdict.Level),
		ReviewRequired: verdict.Action == risk.ActionManualReview,
	}
	txn.CreatedAt = now
	txn.UpdatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertWithUniqueNo(ctx, tx, txn, now); err != nil {
			return err
		}

		detail := &paymentdetail.PaymentDetail{
			TransactionID: txn.ID,
			IPAddress:     req.IP,
			UserAgent:     req.UserAgent,
		}
		if err := s.txns.WithTx(tx).CreateDetail(ctx, detail); err != nil {
			return fmt.Errorf("create payment detail: %w", err)
		}

		if txn.ReviewRequired {
			id := txn.ID
			if err := s.fraudLogs.WithTx(tx).Create(ctx, fraudLogFor(&id, req, verdict)); err != nil {
				return fmt.Errorf("create fraud log: %w", err)
			}
		}

		for _, hook := range hooks {
			if err := hook(tx, txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if txn.ReviewRequired {
		s.recordGraph(ctx, req, verdict, txn.TransactionNo)
		logger.WarnString("Payment", "ManualReview", fmt.Sprintf("%s flagged: %s", txn.TransactionNo, verdict.Description))
	}
	return txn, nil
}

// insertWithUniqueNo 生成交易号并插入，交易号冲突时在保存点内重试
func (s *Service) insertWithUniqueNo(ctx context.Context, tx *gorm.DB, txn *transaction.Transaction, now time.Time) error {
	var lastErr error
	for i := 0; i < maxReferenceAttempts; i++ {
		txn.ID = 0
		txn.TransactionNo = utils.GenerateTransactionNo(now)
		lastErr = tx.Transaction(func(sp *gorm.DB) error {
			return s.txns.WithTx(sp).Create(ctx, txn)
		})
		if lastErr == nil {
			return nil
		}
		if !database.IsDuplicateKey(lastErr) {
			return fmt.Errorf("insert transaction: %w", lastErr)
		}
	}
	return fmt.Errorf("allocate transaction number: %w", lastErr)
}

// Process 调用支付渠道处理一笔待处理交易
func (s *Service) Process(ctx context.Context, transactionNo string) (*ProcessResult, error) {
	txn, err := s.Get(ctx, transactionNo)
	if err != nil {
		return nil, err
	}
	if txn.Status != transaction.StatusPending {
		return nil, fmt.Errorf("%w: transaction %s is %s", ErrStateConflict, transactionNo, txn.Status)
	}

	claimed, err := s.txns.CompareAndSetStatus(ctx, txn.ID,
		[]transaction.Status{transaction.StatusPending}, transaction.StatusProcessing, nil)
	if err != nil {
		return nil, fmt.Errorf("claim transaction %s: %w", transactionNo, err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: transaction %s is already being processed", ErrStateConflict, transactionNo)
	}
	txn.Status = transaction.StatusProcessing

	// 抢到处理权之后的写入不随请求取消而中断
	dbCtx := context.WithoutCancel(ctx)

	result := s.callGateway(ctx, txn)

	attempts, err := s.txns.RecordAttempt(dbCtx, txn.ID, resultJSON(result), result.Signature, result.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("record attempt for %s: %w", transactionNo, err)
	}

	out := &ProcessResult{Transaction: txn, Gateway: result, Attempts: attempts}

	switch result.Outcome {
	case types.OutcomePending:
		// 等待渠道回调或超时扫描
		logger.InfoString("Payment", "Process", fmt.Sprintf("%s awaiting %s confirmation", transactionNo, txn.PaymentMethod))
		return out, nil

	case types.OutcomeSuccess:
		completedAt := s.now()
		if err := s.transition(dbCtx, txn, processingOnly, transaction.StatusSuccess,
			map[string]interface{}{"completed_at": completedAt}); err != nil {
			return nil, err
		}
		txn.CompletedAt = &completedAt
		logger.InfoString("Payment", "Process", fmt.Sprintf("%s succeeded via %s", transactionNo, result.ProviderPaymentNo))
		s.notify(dbCtx, txn, notify.KindSuccess, "")
		s.fireTerminal(dbCtx, txn)
		return out, nil

	default:
		if err := s.transition(dbCtx, txn, processingOnly, transaction.StatusFailed, nil); err != nil {
			return nil, err
		}
		final := txn.IsFinal(attempts, s.cfg.RetryLimit)
		out.CanRetry = !final
		logger.WarnString("Payment", "Process", fmt.Sprintf("%s failed (%s %s), attempt %d/%d",
			transactionNo, result.ErrorCode, result.ErrorMessage, attempts, s.cfg.RetryLimit))
		s.notify(dbCtx, txn, notify.KindFailed, result.ErrorMessage)
		if final {
			s.fireTerminal(dbCtx, txn)
		}
		return out, nil
	}
}

// callGateway 渠道错误统一视为失败结果
func (s *Service) callGateway(ctx context.Context, txn *transaction.Transaction) *types.Result {
	attempt := types.Attempt{
		TransactionNo: txn.TransactionNo,
		Amount:        txn.Amount,
		Description:   txn.Description,
		Timestamp:     s.now(),
	}

	gw, err := s.gateways.Get(types.Method(txn.PaymentMethod))
	if err == nil {
		var result *types.Result
		result, err = gw.CreatePayment(ctx, attempt)
		if err == nil {
			return result
		}
	}

	logger.ErrorString("Payment", "Gateway", fmt.Sprintf("%s: %v", txn.TransactionNo, err))
	return &types.Result{
		Outcome:      types.OutcomeFailed,
		Method:       types.Method(txn.PaymentMethod),
		Timestamp:    s.now(),
		ErrorCode:    "GATEWAY_ERROR",
		ErrorMessage: err.Error(),
	}
}

// Retry 将可重试的失败交易重新置为待处理
func (s *Service) Retry(ctx context.Context, transactionNo string) (*transaction.Transaction, error) {
	txn, err := s.Get(ctx, transactionNo)
	if err != nil {
		return nil, err
	}
	if txn.Status != transaction.StatusFailed {
		return nil, fmt.Errorf("%w: only failed transactions can be retried, %s is %s", ErrStateConflict, transactionNo, txn.Status)
	}

	detail, err := s.txns.GetDetail(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment detail for %s: %w", transactionNo, err)
	}
	if detail.Attempts >= s.cfg.RetryLimit {
		return nil, fmt.Errorf("%w: %s has been processed %d times", ErrRetryExhausted, transactionNo, detail.Attempts)
	}

	if err := s.transition(ctx, txn, []transaction.Status{transaction.StatusFailed}, transaction.StatusPending, nil); err != nil {
		return nil, err
	}
	return txn, nil
}

// Cancel 取消待处理或处理中的交易
func (s *Service) Cancel(ctx context.Context, transactionNo, reason string) (*transaction.Transaction, error) {
	txn, err := s.Get(ctx, transactionNo)
	if err != nil {
		return nil, err
	}
	if !txn.CanCancel() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCancelable, transactionNo, txn.Status)
	}

	ok, err := s.txns.CompareAndSetStatus(ctx, txn.ID, transaction.Cancelable, transaction.StatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", transactionNo, err)
	}
	if !ok {
		current, _ := s.Get(ctx, transactionNo)
		status := transaction.Status("unknown")
		if current != nil {
			status = current.Status
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCancelable, transactionNo, status)
	}
	txn.Status = transaction.StatusCancelled

	if reason == "" {
		reason = "cancelled by request"
	}
	dbCtx := context.WithoutCancel(ctx)
	if err := s.txns.UpdateDetail(dbCtx, txn.ID, map[string]interface{}{"error_message": reason}); err != nil {
		logger.ErrorString("Payment", "Cancel", fmt.Sprintf("save reason for %s: %v", transactionNo, err))
	}

	logger.InfoString("Payment", "Cancel", fmt.Sprintf("%s cancelled: %s", transactionNo, reason))
	s.notify(dbCtx, txn, notify.KindCancelled, reason)
	s.fireTerminal(dbCtx, txn)
	return txn, nil
}

// SweepTimeouts 关闭超时未完成的交易，返回本次关闭的笔数
// 先逐笔条件更新，全部关闭后再发通知和终态回调，外部推送的重试不占用扫描的时限
func (s *Service) SweepTimeouts(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Timeout)
	var timedOut []transaction.Transaction
	var sweepErr error

	for sweepErr == nil {
		stale, err := s.txns.ListStale(ctx, cutoff, s.cfg.SweepBatch)
		if err != nil {
			sweepErr = fmt.Errorf("list stale transactions: %w", err)
			break
		}

		for i := range stale {
			txn := stale[i]
			ok, err := s.txns.CompareAndSetStatus(ctx, txn.ID, transaction.Cancelable, transaction.StatusTimeout, nil)
			if err != nil {
				sweepErr = fmt.Errorf("time out %s: %w", txn.TransactionNo, err)
				break
			}
			if !ok {
				// 已被并发的处理或取消推进
				continue
			}
			txn.Status = transaction.StatusTimeout
			timedOut = append(timedOut, txn)
		}

		if len(stale) < s.cfg.SweepBatch {
			break
		}
	}

	// 已经落库的超时状态必须通知到位
	dbCtx := context.WithoutCancel(ctx)
	for i := range timedOut {
		txn := &timedOut[i]
		if err := s.txns.UpdateDetail(dbCtx, txn.ID, map[string]interface{}{"error_message": "payment timeout"}); err != nil {
			logger.ErrorString("Payment", "Sweep", err.Error())
		}
		s.notify(dbCtx, txn, notify.KindTimeout, "payment timeout")
		s.fireTerminal(dbCtx, txn)
	}

	if len(timedOut) > 0 {
		logger.InfoString("Payment", "Sweep", fmt.Sprintf("%d transactions timed out", len(timedOut)))
	}
	return len(timedOut), sweepErr
}

// ApplyCallbackStatus 按渠道回调结果更新交易，重复回调不产生变化
// 成功可由待处理、处理中或失败推进；失败只能由待处理或处理中推进
func (s *Service) ApplyCallbackStatus(ctx context.Context, txn *transaction.Transaction, success bool, raw models.JSON) (bool, error) {
	target := transaction.StatusFailed
	from := []transaction.Status{transaction.StatusPending, transaction.StatusProcessing}
	fields := map[string]interface{}{}
	if success {
		target = transaction.StatusSuccess
		from = append(from, transaction.StatusFailed)
		completedAt := s.now()
		fields["completed_at"] = completedAt
		defer func() {
			if txn.Status == transaction.StatusSuccess && txn.CompletedAt == nil {
				txn.CompletedAt = &completedAt
			}
		}()
	}

	if txn.Status == target {
		return false, nil
	}
	if !containsStatus(from, txn.Status) {
		return false, fmt.Errorf("%w: cannot move %s from %s to %s", ErrStateConflict, txn.TransactionNo, txn.Status, target)
	}

	ok, err := s.txns.CompareAndSetStatus(ctx, txn.ID, from, target, fields)
	if err != nil {
		return false, fmt.Errorf("apply callback to %s: %w", txn.TransactionNo, err)
	}
	if !ok {
		current, err := s.txns.GetByID(ctx, txn.ID)
		if err == nil && current.Status == target {
			*txn = *current
			return false, nil
		}
		return false, fmt.Errorf("%w: %s changed concurrently", ErrStateConflict, txn.TransactionNo)
	}
	txn.Status = target

	// 只有真正推进了状态的回调才覆盖渠道报文
	dbCtx := context.WithoutCancel(ctx)
	if err := s.txns.UpdateDetail(dbCtx, txn.ID, map[string]interface{}{"gateway_response": raw}); err != nil {
		return true, fmt.Errorf("save callback payload for %s: %w", txn.TransactionNo, err)
	}

	kind := notify.KindFailed
	if success {
		kind = notify.KindSuccess
	}
	s.notify(dbCtx, txn, kind, "")
	return true, nil
}

// Get 根据交易号获取交易
func (s *Service) Get(ctx context.Context, transactionNo string) (*transaction.Transaction, error) {
	txn, err := s.txns.GetByNo(ctx, transactionNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionNo)
		}
		return nil, fmt.Errorf("load transaction %s: %w", transactionNo, err)
	}
	return txn, nil
}

// GetByID 根据主键获取交易
func (s *Service) GetByID(ctx context.Context, id uint64) (*transaction.Transaction, error) {
	txn, err := s.txns.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load transaction %d: %w", id, err)
	}
	return txn, nil
}

// Query 获取交易及处理明细
func (s *Service) Query(ctx context.Context, transactionNo string) (*transaction.Transaction, *paymentdetail.PaymentDetail, error) {
	txn, err := s.Get(ctx, transactionNo)
	if err != nil {
		return nil, nil, err
	}
	detail, err := s.Detail(ctx, txn.ID)
	if err != nil {
		return nil, nil, err
	}
	return txn, detail, nil
}

// Detail 获取处理明细
func (s *Service) Detail(ctx context.Context, transactionID uint64) (*paymentdetail.PaymentDetail, error) {
	detail, err := s.txns.GetDetail(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load payment detail %d: %w", transactionID, err)
	}
	return detail, nil
}

// History 用户历史交易
func (s *Service) History(ctx context.Context, userID uint64, page, pageSize int) ([]transaction.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.txns.GetByUserID(ctx, userID, page, pageSize)
}

// transition 条件更新状态，失败时返回 ErrStateConflict
func (s *Service) transition(ctx context.Context, txn *transaction.Transaction, from []transaction.Status, to transaction.Status, fields map[string]interface{}) error {
	ok, err := s.txns.CompareAndSetStatus(ctx, txn.ID, from, to, fields)
	if err != nil {
		return fmt.Errorf("move %s to %s: %w", txn.TransactionNo, to, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s changed state before it could move to %s", ErrStateConflict, txn.TransactionNo, to)
	}
	txn.Status = to
	return nil
}

func (s *Service) notify(ctx context.Context, txn *transaction.Transaction, kind notify.Kind, reason string) {
	s.notifier.Notify(ctx, notify.Event{
		Kind:          kind,
		TransactionID: txn.ID,
		TransactionNo: txn.TransactionNo,
		UserID:        txn.UserID,
		Amount:        txn.Amount.StringFixed(2),
		Method:        txn.PaymentMethod,
		Reason:        reason,
		OccurredAt:    s.now(),
	})
}

func (s *Service) fireTerminal(ctx context.Context, txn *transaction.Transaction) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.OnTerminal(ctx, txn)
	}
}

// recordBlocked 拦截的交易只留下风控日志
func (s *Service) recordBlocked(ctx context.Context, req CreateRequest, verdict *risk.Verdict) {
	if err := s.fraudLogs.Create(ctx, fraudLogFor(nil, req, verdict)); err != nil {
		logger.ErrorString("Payment", "FraudLog", err.Error())
	}
	s.recordGraph(ctx, req, verdict, "")
	logger.Warn("Payment",
		zap.String("action", "risk_blocked"),
		zap.Uint64("user_id", req.UserID),
		zap.String("level", string(verdict.Level)),
		zap.String("description", verdict.Description),
	)
}

func (s *Service) recordGraph(ctx context.Context, req CreateRequest, verdict *risk.Verdict, transactionNo string) {
	err := s.graph.Record(ctx, fraudgraph.Entry{
		UserID:        req.UserID,
		IP:            req.IP,
		TransactionNo: transactionNo,
		Level:         string(verdict.Level),
		Type:          verdict.Type,
		Action:        string(verdict.Action),
		Description:   verdict.Description,
		At:            s.now(),
	})
	if err != nil {
		logger.ErrorString("Payment", "FraudGraph", err.Error())
	}
}

func fraudLogFor(transactionID *uint64, req CreateRequest, verdict *risk.Verdict) *fraudlog.FraudLog {
	return &fraudlog.FraudLog{
		TransactionID: transactionID,
		UserID:        req.UserID,
		RiskLevel:     string(verdict.Level),
		RiskType:      verdict.Type,
		Description:   verdict.Description,
		IPAddress:     req.IP,
		ActionTaken:   string(verdict.Action),
	}
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.UserID == 0:
		return fmt.Errorf("%w: user id is required", ErrValidation)
	case !req.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	case !req.Amount.Equal(req.Amount.Round(2)):
		return fmt.Errorf("%w: amount supports at most 2 decimal places", ErrValidation)
	case !req.Method.Valid():
		return fmt.Errorf("%w: unsupported payment method %q", ErrValidation, req.Method)
	case len([]rune(req.Description)) > 255:
		return fmt.Errorf("%w: description is too long", ErrValidation)
	}
	return nil
}

func resultJSON(r *types.Result) models.JSON {
	out := models.JSON{
		"outcome":   string(r.Outcome),
		"method":    string(r.Method),
		"timestamp": r.Timestamp.Format(time.RFC3339),
	}
	if r.ProviderPaymentNo != "" {
		out["provider_payment_no"] = r.ProviderPaymentNo
	}
	if r.ErrorCode != "" {
		out["error_code"] = r.ErrorCode
		out["error_message"] = r.ErrorMessage
	}
	if r.PaymentURL != "" {
		out["payment_url"] = r.PaymentURL
	}
	for k, v := range r.Extra {
		out[k] = v
	}
	return out
}

func containsStatus(list []transaction.Status, s transaction.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
