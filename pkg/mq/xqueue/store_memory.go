package xqueue

import (
	"context"
	"slices"
	"sync"
	"time"
)

var _ JobStore = (*MemoryStore)(nil)

// MemoryStore 进程内任务存储
//
// 进程退出后任务丢失，适用于测试与单实例部署。
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Enqueue(_ context.Context, job *Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return false, nil
	}
	j := job.clone()
	j.Status = StatusPending
	s.jobs[j.ID] = j
	return true, nil
}

func (s *MemoryStore) Dequeue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := make([]*Job, 0, limit)
	for _, j := range s.jobs {
		if j.Status == StatusPending && !j.RunAt.After(now) {
			ready = append(ready, j)
		}
	}
	slices.SortFunc(ready, func(a, b *Job) int { return a.RunAt.Compare(b.RunAt) })
	if len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]*Job, 0, len(ready))
	for _, j := range ready {
		j.Attempts++
		j.Status = StatusInFlight
		j.LeaseUntil = now.Add(lease)
		j.UpdatedAt = now
		out = append(out, j.clone())
	}
	return out, nil
}

func (s *MemoryStore) Ack(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.leased(job); err != nil {
		return err
	}
	delete(s.jobs, job.ID)
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, job *Job, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.leased(job)
	if err != nil {
		return err
	}
	j := job.clone()
	j.Attempts = cur.Attempts
	j.Status = StatusPending
	j.RunAt = runAt
	j.LeaseUntil = time.Time{}
	s.jobs[j.ID] = j
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.leased(job)
	if err != nil {
		return err
	}
	j := job.clone()
	j.Attempts = cur.Attempts
	j.Status = StatusFailed
	j.LeaseUntil = time.Time{}
	s.jobs[j.ID] = j
	return nil
}

// leased 返回 job 对应的存储记录，调用方必须仍持有本次投递的租约
func (s *MemoryStore) leased(job *Job) (*Job, error) {
	cur, ok := s.jobs[job.ID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if cur.Status != StatusInFlight || !cur.LeaseUntil.Equal(job.LeaseUntil) {
		return nil, ErrLeaseLost
	}
	return cur, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.clone(), nil
}

func (s *MemoryStore) ListFailed(_ context.Context, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, j := range s.jobs {
		if j.Status == StatusFailed {
			out = append(out, j.clone())
		}
	}
	slices.SortFunc(out, func(a, b *Job) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Replay(_ context.Context, id string, now time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.Status != StatusFailed {
		return nil, ErrNotFailed
	}
	j.Status = StatusPending
	j.Attempts = 0
	j.RunAt = now
	j.UpdatedAt = now
	return j.clone(), nil
}

func (s *MemoryStore) Reclaim(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status != StatusInFlight || j.LeaseUntil.After(now) {
			continue
		}
		j.LeaseUntil = time.Time{}
		j.UpdatedAt = now
		if j.Exhausted() {
			j.Status = StatusFailed
			j.LastError = leaseExpired
		} else {
			j.Status = StatusPending
			j.RunAt = now
		}
		n++
	}
	return n, nil
}

// Len 存储中的任务数（含失败任务）
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
