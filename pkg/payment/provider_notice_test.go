package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/app/models"
	"paygate/app/models/transaction"
	"paygate/pkg/payment"
	"paygate/pkg/payment/types"
)

func alipayNotice(transactionNo, tradeStatus, sign string) payment.ProviderNotice {
	fields := map[string]string{
		"out_trade_no": transactionNo,
		"trade_no":     "2024ALI" + transactionNo,
		"trade_status": tradeStatus,
		"sign_type":    "RSA2",
		"sign":         sign,
	}
	raw := models.JSON{}
	for k, v := range fields {
		raw[k] = v
	}
	return payment.ProviderNotice{Method: types.MethodAlipay, Fields: fields, Raw: raw}
}

func TestProviderNotifySettlesPendingTransaction(t *testing.T) {
	f := newFixture(t, types.OutcomePending)
	ctx := context.Background()
	txn := f.create(t, "100.00")

	processed, err := f.svc.Process(ctx, txn.TransactionNo)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusProcessing, processed.Transaction.Status)

	// 等待付款的通知不改变状态
	result, err := f.svc.HandleProviderNotify(ctx, alipayNotice(txn.TransactionNo, "WAIT_BUYER_PAY", "STUBSIG"))
	require.NoError(t, err)
	assert.False(t, result.Settled)
	assert.False(t, result.Changed)

	result, err = f.svc.HandleProviderNotify(ctx, alipayNotice(txn.TransactionNo, "TRADE_SUCCESS", "STUBSIG"))
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, transaction.StatusSuccess, result.Transaction.Status)
	assert.NotNil(t, result.Transaction.CompletedAt)
	assert.Equal(t, []transaction.Status{transaction.StatusSuccess}, f.observer.statuses())

	_, detail, err := f.svc.Query(ctx, txn.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, "TRADE_SUCCESS", detail.GatewayResponse["trade_status"])

	// 重发的通知不重复触发
	result, err = f.svc.HandleProviderNotify(ctx, alipayNotice(txn.TransactionNo, "TRADE_SUCCESS", "STUBSIG"))
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Len(t, f.observer.statuses(), 1)
}

func TestProviderNotifyFailureKeepsRetryOpen(t *testing.T) {
	f := newFixture(t, types.OutcomePending)
	ctx := context.Background()
	txn := f.create(t, "100.00")

	_, err := f.svc.Process(ctx, txn.TransactionNo)
	require.NoError(t, err)

	result, err := f.svc.HandleProviderNotify(ctx, alipayNotice(txn.TransactionNo, "TRADE_CLOSED", "STUBSIG"))
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, transaction.StatusFailed, result.Transaction.Status)
	// 一次处理未用尽重试次数，不是终态
	assert.Empty(t, f.observer.statuses())

	retried, err := f.svc.Retry(ctx, txn.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, retried.Status)
}

func TestProviderNotifyRejects(t *testing.T) {
	f := newFixture(t, types.OutcomePending)
	ctx := context.Background()
	txn := f.create(t, "100.00")

	_, err := f.svc.HandleProviderNotify(ctx, alipayNotice(txn.TransactionNo, "TRADE_SUCCESS", "forged"))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = f.svc.HandleProviderNotify(ctx, alipayNotice(txn.TransactionNo, "TRADE_SUCCESS", ""))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = f.svc.HandleProviderNotify(ctx, alipayNotice("TXN-NOPE", "TRADE_SUCCESS", "STUBSIG"))
	assert.ErrorIs(t, err, payment.ErrNotFound)

	_, err = f.svc.HandleProviderNotify(ctx, alipayNotice("", "TRADE_SUCCESS", "STUBSIG"))
	assert.ErrorIs(t, err, payment.ErrValidation)

	wechat := alipayNotice(txn.TransactionNo, "TRADE_SUCCESS", "STUBSIG")
	wechat.Method = types.MethodWechat
	_, err = f.svc.HandleProviderNotify(ctx, wechat)
	assert.ErrorIs(t, err, payment.ErrValidation)

	unknown := alipayNotice(txn.TransactionNo, "TRADE_SUCCESS", "STUBSIG")
	unknown.Method = types.Method("paypal")
	_, err = f.svc.HandleProviderNotify(ctx, unknown)
	assert.ErrorIs(t, err, payment.ErrValidation)

	got, err := f.svc.Get(ctx, txn.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, got.Status)
	assert.Empty(t, f.observer.statuses())
}
