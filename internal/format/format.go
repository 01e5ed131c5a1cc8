// Package format renders base-unit amounts, hashes, sizes and ages for display.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"bbkexplorer/internal/errors"
)

// CoinScale 展示单位与基础单位的换算比例
const CoinScale int64 = 100000000

// CoinDecimals 展示单位小数位数
const CoinDecimals = 8

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatNumber 千分位分组
func FormatNumber(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatBBK 基础单位转为展示单位，固定8位小数并千分位分组。全程整数运算
func FormatBBK(baseUnits int64) string {
	sign := ""
	// 取绝对值时避免MinInt64溢出
	whole := baseUnits / CoinScale
	frac := baseUnits % CoinScale
	if baseUnits < 0 {
		sign = "-"
		whole = -whole
		frac = -frac
	}
	return fmt.Sprintf("%s%s.%08d", sign, printer.Sprintf("%d", whole), frac)
}

// ParseBBK 展示单位字符串转为基础单位，是FormatBBK的逆运算
func ParseBBK(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, invalidAmount(s, "空金额")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	wholePart, fracPart, _ := strings.Cut(s, ".")
	if wholePart == "" {
		wholePart = "0"
	}
	if len(fracPart) > CoinDecimals {
		return 0, invalidAmount(s, "超过8位小数")
	}
	fracPart += strings.Repeat("0", CoinDecimals-len(fracPart))

	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil || whole < 0 {
		return 0, invalidAmount(s, "整数部分无效")
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil || frac < 0 {
		return 0, invalidAmount(s, "小数部分无效")
	}
	if whole > (1<<63-1-frac)/CoinScale {
		return 0, invalidAmount(s, "金额溢出")
	}

	v := whole*CoinScale + frac
	if negative {
		v = -v
	}
	return v, nil
}

func invalidAmount(s, reason string) error {
	return errors.NewExplorerError(errors.ErrorTypeInvalidQuery, errors.SeverityLow,
		errors.ErrInvalidQuery.Code, "无效的金额: "+reason).WithContext("amount", s)
}

// FormatHash 长哈希截断为 前N...后N
func FormatHash(hash string, chars int) string {
	if chars <= 0 {
		chars = 8
	}
	if len(hash) <= chars*2 {
		return hash
	}
	return hash[:chars] + "..." + hash[len(hash)-chars:]
}

// FormatTimeAgo 相对时间，如 "5m ago"
func FormatTimeAgo(timestamp int64, now time.Time) string {
	seconds := now.Unix() - timestamp
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return fmt.Sprintf("%dd ago", seconds/86400)
	}
}

// FormatDate UTC日期时间
func FormatDate(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("Jan 2, 2006, 03:04:05 PM")
}

// FormatBytes 字节数转为B/KB/MB/GB
func FormatBytes(bytes int64) string {
	const unit = 1024
	switch {
	case bytes < unit:
		return fmt.Sprintf("%d B", bytes)
	case bytes < unit*unit:
		return fmt.Sprintf("%.2f KB", float64(bytes)/unit)
	case bytes < unit*unit*unit:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(unit*unit))
	default:
		return fmt.Sprintf("%.2f GB", float64(bytes)/(unit*unit*unit))
	}
}

// FormatDuration 秒数转为 1d 2h 3m 形式
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	d := seconds / 86400
	h := seconds % 86400 / 3600
	m := seconds % 3600 / 60
	var parts []string
	if d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
	}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	return strings.Join(parts, " ")
}
