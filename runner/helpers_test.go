package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/tower-poller/checkpoint"
	"github.com/marcelsud/tower-poller/input"
	"github.com/marcelsud/tower-poller/schedule"
	"github.com/stretchr/testify/require"
)

// towerServer serves job_events for the given ids in the order listed,
// pageSize records per page, honouring id__gt.
func towerServer(t *testing.T, pageSize int, ids ...int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("id__gt"), 10, 64)
		results := make([]map[string]any, 0)
		for _, id := range ids {
			if id > after && len(results) < pageSize {
				results = append(results, map[string]any{"id": id, "event": "runner_on_ok"})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func inputConfig(t *testing.T, name, host string) input.Config {
	t.Helper()
	spec, err := schedule.Every(time.Hour)
	require.NoError(t, err)
	return input.Config{
		Name:        name,
		Host:        host,
		Username:    "admin",
		Password:    "secret",
		Category:    input.JobEvents,
		LogLevel:    input.Info,
		Schedule:    spec,
		BackoffBase: 5 * time.Millisecond,
		BackoffCap:  2,
	}
}

// memorySink records envelopes in arrival order
type memorySink struct {
	mu   sync.Mutex
	envs []input.Envelope
}

func (m *memorySink) Write(_ context.Context, env input.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envs = append(m.envs, env)
	return nil
}

func (m *memorySink) IDs(inputName string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, env := range m.envs {
		if env.Input != inputName {
			continue
		}
		var rec struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			panic(fmt.Sprintf("bad envelope data: %v", err))
		}
		ids = append(ids, rec.ID)
	}
	return ids
}

// cancellingSink cancels the poll context on its first write and keeps
// accepting records
type cancellingSink struct {
	memorySink
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingSink) Write(ctx context.Context, env input.Envelope) error {
	c.once.Do(c.cancel)
	return c.memorySink.Write(ctx, env)
}

// flakyStore fails the first n checkpoint writes, then behaves like memory
type flakyStore struct {
	*checkpoint.Memory
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Set(ctx context.Context, inputName string, category input.Category, cursor int64) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return checkpoint.SetError(errors.New("disk full"))
	}
	f.mu.Unlock()
	return f.Memory.Set(ctx, inputName, category, cursor)
}

// syncBuffer is a goroutine safe log destination
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
