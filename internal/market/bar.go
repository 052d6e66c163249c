package market

import (
	"fmt"
	"time"
)

// Bar 是一根周期 K 线（参考域为周线，逻辑上与周期无关）。
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Series 是按日期严格递增排列的 K 线序列。
type Series []Bar

// Validate 检查序列日期严格递增（每个交易周期一根）。
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Date.After(s[i-1].Date) {
			return fmt.Errorf("bar 序列日期未递增: %s -> %s",
				s[i-1].Date.Format("2006-01-02"), s[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Closes 返回收盘价列，供均线计算使用。
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Clone 返回深拷贝；并发回测各自持有独立副本，互不共享派生列。
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}
