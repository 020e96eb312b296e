package requests

import (
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/thedevsaddam/govalidator"

	"paygate/pkg/payment/types"
)

// CreatePaymentForm 创建支付的原始请求，数字字段允许传字符串
type CreatePaymentForm struct {
	OrderID       string `json:"orderId"`
	UserID        string `json:"userId"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"paymentMethod"`
	Description   string `json:"description"`
	NotifyURL     string `json:"notifyUrl"`
	ReturnURL     string `json:"returnUrl"`
}

// CreatePayment 校验后的创建请求
type CreatePayment struct {
	// OrderID 不为空时走外部订单下单
	OrderID     string
	UserID      uint64
	Amount      decimal.Decimal
	Method      types.Method
	Description string
	NotifyURL   string
	ReturnURL   string
}

// ValidateCreatePayment 校验创建支付请求
func ValidateCreatePayment(c *gin.Context) (*CreatePayment, error) {
	payload, err := BindPayload(c)
	if err != nil {
		return nil, err
	}

	form := CreatePaymentForm{
		OrderID:       payload.String("orderId", "externalOrderId", "order_id"),
		UserID:        payload.String("userId", "user_id"),
		Amount:        payload.String("amount"),
		PaymentMethod: payload.String("paymentMethod", "payment_method"),
		Description:   payload.String("description"),
		NotifyURL:     payload.String("notifyUrl", "notify_url"),
		ReturnURL:     payload.String("returnUrl", "return_url"),
	}

	rules := govalidator.MapData{
		"userId":        []string{"required"},
		"amount":        []string{"required"},
		"paymentMethod": []string{"required"},
		"description":   []string{"max:255"},
		"orderId":       []string{"max:100"},
		"notifyUrl":     []string{"max:500"},
		"returnUrl":     []string{"max:500"},
	}
	messages := govalidator.MapData{
		"userId": []string{
			"required:用户 ID 不能为空",
		},
		"amount": []string{
			"required:金额不能为空",
		},
		"paymentMethod": []string{
			"required:支付方式不能为空",
		},
		"description": []string{
			"max:描述长度不能超过 255 个字符",
		},
		"orderId": []string{
			"max:订单号长度不能超过 100 个字符",
		},
	}
	if err := ValidateStruct(&form, rules, messages); err != nil {
		return nil, err
	}

	errs := url.Values{}
	userID, err := cast.ToUint64E(form.UserID)
	if err != nil || userID == 0 {
		errs.Add("userId", "用户 ID 无效")
	}
	amount, err := decimal.NewFromString(form.Amount)
	if err != nil || !amount.IsPositive() {
		errs.Add("amount", "金额必须大于 0")
	}
	method, err := types.ParseMethod(form.PaymentMethod)
	if err != nil {
		errs.Add("paymentMethod", "不支持的支付方式: "+form.PaymentMethod)
	}
	if len(errs) > 0 {
		return nil, ValidationError{Errors: errs}
	}

	return &CreatePayment{
		OrderID:     form.OrderID,
		UserID:      userID,
		Amount:      amount,
		Method:      method,
		Description: form.Description,
		NotifyURL:   form.NotifyURL,
		ReturnURL:   form.ReturnURL,
	}, nil
}

// PaymentRef 按交易号或支付 ID 定位一笔支付
type PaymentRef struct {
	TransactionNo string `json:"transactionNo"`
	PaymentID     string `json:"paymentId"`
	Reason        string `json:"reason"`
}

// ValidatePaymentRef 读取 query 参数或 JSON 请求体中的交易号 / 支付 ID
func ValidatePaymentRef(c *gin.Context) (*PaymentRef, error) {
	ref := PaymentRef{
		TransactionNo: firstNonEmpty(c.Query("transactionNo"), c.Query("transaction_no")),
		PaymentID:     firstNonEmpty(c.Query("paymentId"), c.Query("payment_id")),
	}

	if c.Request.Method != "GET" {
		payload, err := BindPayload(c)
		if err != nil {
			return nil, err
		}
		ref.TransactionNo = firstNonEmpty(ref.TransactionNo, payload.String("transactionNo", "transaction_no"))
		ref.PaymentID = firstNonEmpty(ref.PaymentID, payload.String("paymentId", "payment_id"))
		ref.Reason = payload.String("reason")
	}

	if ref.TransactionNo == "" && ref.PaymentID == "" {
		errs := url.Values{}
		errs.Add("transactionNo", "交易号或支付 ID 不能为空")
		return nil, ValidationError{Errors: errs}
	}
	if err := ValidateStruct(&ref, govalidator.MapData{"reason": []string{"max:255"}}, nil); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Callback 渠道回调请求
type Callback struct {
	PaymentID string
	Status    string
	Signature string
	Fields    map[string]string
	Raw       map[string]interface{}
}

// ValidateCallback 校验回调请求，全部字段原样保留用于验签
func ValidateCallback(c *gin.Context) (*Callback, error) {
	payload, err := BindPayload(c)
	if err != nil {
		return nil, err
	}

	cb := &Callback{
		PaymentID: payload.String("paymentId"),
		Status:    payload.String("status"),
		Signature: payload.String("signature"),
		Fields:    payload.Strings(),
		Raw:       payload,
	}
	if cb.PaymentID == "" {
		errs := url.Values{}
		errs.Add("paymentId", "缺少支付ID")
		return nil, ValidationError{Errors: errs}
	}
	return cb, nil
}

// Pagination 分页参数
func Pagination(c *gin.Context) (page, pageSize int) {
	page = cast.ToInt(c.DefaultQuery("page", "1"))
	pageSize = cast.ToInt(firstNonEmpty(c.Query("pageSize"), c.Query("page_size"), "20"))
	return page, pageSize
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ProviderNotify 渠道原生通知，支付宝为表单，其余渠道为 JSON
type ProviderNotify struct {
	Method types.Method
	Fields map[string]string
	Raw    map[string]interface{}
}

// ValidateProviderNotify 解析 /notify/:method 的通知报文
func ValidateProviderNotify(c *gin.Context) (*ProviderNotify, error) {
	method, err := types.ParseMethod(c.Param("method"))
	if err != nil {
		errs := url.Values{}
		errs.Add("method", "不支持的支付方式")
		return nil, ValidationError{Errors: errs}
	}

	n := &ProviderNotify{Method: method}
	if c.ContentType() == gin.MIMEPOSTForm {
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		n.Fields = make(map[string]string, len(c.Request.PostForm))
		n.Raw = make(map[string]interface{}, len(c.Request.PostForm))
		for k := range c.Request.PostForm {
			v := c.Request.PostForm.Get(k)
			n.Fields[k] = v
			n.Raw[k] = v
		}
	} else {
		payload, err := BindPayload(c)
		if err != nil {
			return nil, err
		}
		n.Fields = payload.Strings()
		n.Raw = payload
	}

	if n.Fields["out_trade_no"] == "" && n.Fields["transaction_no"] == "" && n.Fields["transactionNo"] == "" {
		errs := url.Values{}
		errs.Add("out_trade_no", "缺少商户订单号")
		return nil, ValidationError{Errors: errs}
	}
	return n, nil
}
