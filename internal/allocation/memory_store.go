package allocation

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore 以内存方式保存任务状态。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := m.now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = job.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.clone(), nil
}

func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if err := claimable(job); err != nil {
		return job.clone(), err
	}
	job.Status = StatusRunning
	job.UpdatedAt = m.now().Unix()
	return job.clone(), nil
}

func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, principal common.Address) error {
	return m.update(id, func(job *Job) {
		job.Status = StatusSucceeded
		job.Principal = principal.Hex()
		job.LastError = ""
		job.ErrorCode = ""
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string) error {
	return m.update(id, func(job *Job) {
		job.Status = StatusFailed
		job.LastError = lastError
		job.ErrorCode = string(code)
	})
}

func (m *MemoryStore) update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = m.now().Unix()
	return nil
}

// List 按创建时间返回全部任务。
func (m *MemoryStore) List(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.clone())
	}
	sortJobs(jobs)
	return jobs, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortJobs(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt == jobs[j].CreatedAt {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt < jobs[j].CreatedAt
	})
}
