package scanner

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus 是任务生命周期状态。
type JobStatus string

const (
	JobRunning    JobStatus = "running"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
	JobSuperseded JobStatus = "superseded" // 被更新一代的重算取代，结果已丢弃
)

// Job 是任务的一次性快照。
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"` // "backtest" | "scan"
	Status     JobStatus  `json:"status"`
	Generation uint64     `json:"generation"`
	Total      int        `json:"total"`
	Done       int        `json:"done"`
	RunID      string     `json:"run_id,omitempty"` // 完成后指向落库的 run
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Tracker 追踪提交过的任务，容量满后淘汰最旧的已结束任务。
type Tracker struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	order    []string
	capacity int
}

func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = 256
	}
	return &Tracker{
		jobs:     make(map[string]*Job),
		capacity: capacity,
	}
}

// Start 登记一个新任务并返回其 ID。
func (t *Tracker) Start(kind string, total int, gen uint64) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := uuid.NewString()
	t.jobs[id] = &Job{
		ID:         id,
		Kind:       kind,
		Status:     JobRunning,
		Generation: gen,
		Total:      total,
		StartedAt:  time.Now(),
	}
	t.order = append(t.order, id)
	t.evictLocked()
	return id
}

// Progress 更新任务的完成计数。
func (t *Tracker) Progress(id string, done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		j.Done = done
		j.Total = total
	}
}

// Finish 标记任务结束。err 为空且未被取代时记为成功。
func (t *Tracker) Finish(id, runID string, superseded bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	j.FinishedAt = &now
	switch {
	case superseded:
		j.Status = JobSuperseded
	case err != nil:
		j.Status = JobFailed
		j.Error = err.Error()
	default:
		j.Status = JobDone
		j.RunID = runID
	}
}

// Snapshot 返回任务快照。
func (t *Tracker) Snapshot(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List 按提交时间倒序返回全部任务快照。
func (t *Tracker) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.order))
	for _, id := range t.order {
		if j, ok := t.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// evictLocked 淘汰最旧的已结束任务；运行中的任务不动。
func (t *Tracker) evictLocked() {
	for len(t.order) > t.capacity {
		evicted := false
		for i, id := range t.order {
			if j, ok := t.jobs[id]; ok && j.Status != JobRunning {
				delete(t.jobs, id)
				t.order = append(t.order[:i], t.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
