package utils

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateTransactionNo 生成交易号：TXN + 年月日时分秒 + 6 位随机数
func GenerateTransactionNo(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 1000000)
	}
	return fmt.Sprintf("TXN%s%06d", now.Format("20060102150405"), n.Int64())
}

// GeneratePaymentID 生成对外的支付 ID
func GeneratePaymentID() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// GenerateNonceStr 生成随机字符串
func GenerateNonceStr() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// sortedKeys 返回排序后的键
func sortedKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedQuery 按键排序的 form-urlencoded 串
func SortedQuery(fields map[string]string) string {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	// url.Values.Encode 按键排序
	return values.Encode()
}

// SortedPairs 按键排序的 k=v& 串，跳过空值和 signature 字段，末尾保留 &
func SortedPairs(fields map[string]string) string {
	var b strings.Builder
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if k == "signature" || v == "" {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('&')
	}
	return b.String()
}

// SortedJSON 按键排序的 JSON，escapeHTML 为 false 时不转义 <>&
func SortedJSON(fields map[string]string, escapeHTML bool) string {
	// encoding/json 对 map 的键排序输出
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(escapeHTML)
	if err := enc.Encode(fields); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// HMACSHA256 十六进制 HMAC-SHA256
func HMACSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA512 十六进制 HMAC-SHA512
func HMACSHA512(data, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// MD5Upper 大写十六进制 MD5
func MD5Upper(data string) string {
	sum := md5.Sum([]byte(data))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// KeyedMD5 SortedPairs + key=secret 的大写 MD5 签名
func KeyedMD5(fields map[string]string, secret string) string {
	return MD5Upper(SortedPairs(fields) + "key=" + secret)
}

// EqualSignature 常量时间比较签名，忽略大小写
func EqualSignature(expected, actual string) bool {
	return hmac.Equal([]byte(strings.ToUpper(expected)), []byte(strings.ToUpper(actual)))
}
