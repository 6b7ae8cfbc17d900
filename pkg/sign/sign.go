// Package sign 实现支付平台回调的 MD5 签名校验
//
// 签名规则（与支付平台约定一致）：
//  1. 取所有非空参数，剔除 sign 和 sign_type
//  2. 按参数名 ASCII 升序排列，拼成 k1=v1&k2=v2&...
//  3. 末尾直接拼接商户密钥，对整串做 MD5
//  4. 比较时忽略大小写
package sign

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign 计算参数集的签名（十六进制小写）
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify 校验回调参数携带的签名
func Verify(params map[string]string, secret string) bool {
	received := params["sign"]
	if received == "" {
		return false
	}
	return strings.EqualFold(received, Sign(params, secret))
}
