package allocation

import "context"

// Stats 汇总各状态的任务数量。
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// Summarize 统计 jobs 的状态分布。
func Summarize(jobs []*Job) Stats {
	var stats Stats
	for _, job := range jobs {
		stats.Total++
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if stats.OldestUpdatedAt == 0 || job.UpdatedAt < stats.OldestUpdatedAt {
			stats.OldestUpdatedAt = job.UpdatedAt
		}
		if job.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = job.UpdatedAt
		}
	}
	return stats
}

// Stats 返回全部任务的统计信息。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(jobs), nil
}
