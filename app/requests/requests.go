// Package requests 处理请求数据和表单验证
package requests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"github.com/thedevsaddam/govalidator"
)

// ValidationError 自定义验证错误
type ValidationError struct {
	Errors url.Values
}

// Error 实现 error 接口
func (v ValidationError) Error() string {
	return fmt.Sprintf("验证错误: %v", v.Errors)
}

// ValidateStruct 通用的结构体验证函数，data 需为结构体指针，字段名取 json 标签
func ValidateStruct(data interface{}, rules govalidator.MapData, messages govalidator.MapData) error {
	opts := govalidator.Options{
		Data:          data,
		Rules:         rules,
		TagIdentifier: "json",
		Messages:      messages,
	}

	if errs := govalidator.New(opts).ValidateStruct(); len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// Payload 宽松解析的 JSON 请求体，数字和字符串都按字符串读取
type Payload map[string]interface{}

// BindPayload 读取 JSON 请求体，空请求体返回空 Payload
func BindPayload(c *gin.Context) (Payload, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("读取请求失败: %w", err)
	}
	payload := Payload{}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	// 保留金额精度
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析请求失败: %w", err)
	}
	return payload, nil
}

// String 依次读取多个候选字段，返回第一个非空值
func (p Payload) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Strings 全部字段按字符串输出，嵌套对象忽略
func (p Payload) Strings() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			continue
		}
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = cast.ToString(v)
	}
	return out
}
