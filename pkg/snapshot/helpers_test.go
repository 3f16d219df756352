package snapshot

import (
	"context"
	"sync"
	"time"
)

type staticTokens struct {
	token  string
	err    error
	calls  int
	scopes []string
}

func (s *staticTokens) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	s.calls++
	s.scopes = req.Scopes
	if s.err != nil {
		return nil, s.err
	}
	return &TokenResponse{
		Token:     s.token,
		TokenType: "Bearer",
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Scopes:    req.Scopes,
	}, nil
}

// fakeAPI is an in-memory JobAPI.
type fakeAPI struct {
	mu sync.Mutex

	createResults []createResult
	creates       []CreateRequest

	statuses []*ExportJob
	getCalls int

	pages     map[string]*JobPage
	listErr   error
	listCalls int

	deleteErrs map[string]error
	deleted    []string
}

type createResult struct {
	job *ExportJob
	err error
}

func (f *fakeAPI) CreateSnapshot(ctx context.Context, req CreateRequest) (*ExportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates = append(f.creates, req)
	r := f.createResults[0]
	if len(f.createResults) > 1 {
		f.createResults = f.createResults[1:]
	}
	return r.job, r.err
}

func (f *fakeAPI) GetJob(ctx context.Context, id string) (*ExportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	job := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return job, nil
}

func (f *fakeAPI) ListJobs(ctx context.Context, nextLink string) (*JobPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if page, ok := f.pages[nextLink]; ok {
		return page, nil
	}
	return &JobPage{}, nil
}

func (f *fakeAPI) DeleteJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func statusJob(id string, status JobStatus, location string) *ExportJob {
	return &ExportJob{
		ID:             id,
		Status:         status,
		RawStatus:      string(status),
		ResultLocation: location,
		Raw:            map[string]interface{}{"id": id, "status": string(status)},
	}
}

func jobAt(id string, status JobStatus, created time.Time) ExportJob {
	return ExportJob{ID: id, Status: status, RawStatus: string(status), CreatedAt: &created}
}
