package cli

import (
	"context"
	"net/http"
	"time"

	"workflowd/internal/config"
	"workflowd/internal/journal"
	"workflowd/internal/registry"
	"workflowd/internal/workflow"
	"workflowd/pkg/types"
)

type journalDisabledError struct{}

func (journalDisabledError) Error() string   { return "task journal is disabled (set JOURNAL_PATH)" }
func (journalDisabledError) StatusCode() int { return http.StatusNotFound }

// statusService backs the status server with the poller and the journal.
type statusService struct {
	cfg     config.Config
	poller  *workflow.Poller
	journal *journal.Journal
	now     func() time.Time
}

func newStatusService(cfg config.Config, p *workflow.Poller, j *journal.Journal) *statusService {
	return &statusService{cfg: cfg, poller: p, journal: j, now: time.Now}
}

func (s *statusService) Status(ctx context.Context) types.StatusResponse {
	st := s.poller.Stats()
	now := s.now()
	resp := types.StatusResponse{
		State:          st.State,
		ServerName:     s.cfg.ServerName,
		Registered:     s.cfg.HasServerKey(),
		Models:         registry.Roles(s.cfg),
		Actions:        s.poller.Actions(),
		TasksSucceeded: st.Succeeded,
		TasksFailed:    st.Failed,
		PollErrors:     st.PollErrors,
		LastError:      st.LastError,
		CurrentTask:    st.CurrentTask,
		UptimeSeconds:  int64(now.Sub(st.Started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if s.journal != nil {
		// a journal read error only drops the history block
		if ok, failed, err := s.journal.Counts(ctx); err == nil {
			resp.History = &types.TaskTotals{Succeeded: ok, Failed: failed}
		}
	}
	return resp
}

// Ready is true once the workflow API answered the last poll.
func (s *statusService) Ready() bool { return s.poller.Stats().Healthy }

func (s *statusService) RecentTasks(ctx context.Context, limit int) ([]types.TaskRecord, error) {
	if s.journal == nil {
		return nil, journalDisabledError{}
	}
	return s.journal.Recent(ctx, limit)
}
