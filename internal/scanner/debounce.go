package scanner

import (
	"sync"
	"time"
)

// Debouncer 吸收密集触发：窗口期内的重复请求直接拒绝。
// 窗口 <= 0 时等价于放行一切。
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, now: time.Now}
}

// Allow 报告本次触发是否放行，放行时记录触发时间。
func (d *Debouncer) Allow() bool {
	if d == nil || d.window <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}
