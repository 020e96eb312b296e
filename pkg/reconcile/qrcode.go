package reconcile

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"

	"paygate/pkg/logger"
	"paygate/pkg/payment/types"
)

const qrCodeSize = 256

// scanToPay 扫码支付的渠道
func scanToPay(m types.Method) bool {
	return m == types.MethodAlipay || m == types.MethodWechat
}

// QRCode 把收银台地址编码为 PNG 二维码的 data URI，生成失败返回空串
func QRCode(content string) string {
	png, err := qrcode.Encode(content, qrcode.Medium, qrCodeSize)
	if err != nil {
		logger.ErrorString("Reconcile", "QRCode", fmt.Sprintf("encode %q: %v", content, err))
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
