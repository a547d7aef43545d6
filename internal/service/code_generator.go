package service

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// voucherCodeAlphabet 去掉了易混淆的 0/O、1/I/L
const voucherCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// randomNumericCode 生成 length 位数字码，首位非 0
// 在 [10^(length-1), 10^length-1] 上均匀分布
func randomNumericCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", errors.New("numeric code length out of range")
	}
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Sub(new(big.Int).Mul(low, big.NewInt(10)), low)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, low).String(), nil
}

// randomVoucherCode 生成 prefix + length 位随机字符
func randomVoucherCode(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", errors.New("voucher code length out of range")
	}
	alphabetSize := big.NewInt(int64(len(voucherCodeAlphabet)))
	var b strings.Builder
	b.Grow(len(prefix) + length)
	b.WriteString(prefix)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(voucherCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
