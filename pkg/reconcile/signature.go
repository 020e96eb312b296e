package reconcile

import (
	"paygate/pkg/payment/utils"
)

// SignCallback 回调签名：按键排序的非空 k=v& 串，追加 key=secret 后取大写 MD5
func SignCallback(fields map[string]string, secret string) string {
	return utils.KeyedMD5(fields, secret)
}

// VerifyCallback 校验回调签名，忽略大小写
func VerifyCallback(fields map[string]string, signature, secret string) bool {
	if signature == "" {
		return false
	}
	return utils.EqualSignature(SignCallback(fields, secret), signature)
}
