package tower_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/tower-poller/input"
	"github.com/marcelsud/tower-poller/schedule"
	"github.com/marcelsud/tower-poller/tower"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T, host string) input.Config {
	t.Helper()
	spec, err := schedule.Every(time.Minute)
	require.NoError(t, err)
	return input.Config{
		Name:     "prod",
		Host:     host,
		Username: "admin",
		Password: "secret",
		Category: input.JobEvents,
		LogLevel: input.Debug,
		Schedule: spec,
	}
}

func newClient(t *testing.T, cfg input.Config) *tower.Client {
	t.Helper()
	c, err := tower.NewClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	return c
}

// fakeTower serves job_events from a fixed set of ids, pageSize at a time
type fakeTower struct {
	mu       sync.Mutex
	ids      []int64
	pageSize int
	requests []url.Values
}

func (f *fakeTower) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "admin" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Query())
	f.mu.Unlock()

	after, _ := strconv.ParseInt(r.URL.Query().Get("id__gt"), 10, 64)
	var buf bytes.Buffer
	buf.WriteString(`{"results":[`)
	n := 0
	for _, id := range f.ids {
		if id <= after || n == f.pageSize {
			continue
		}
		if n > 0 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, `{"id":%d,"event":"runner_on_ok"}`, id)
		n++
	}
	buf.WriteString(`]}`)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

func TestClient_PageURL(t *testing.T) {
	t.Run("standard query", func(t *testing.T) {
		c := newClient(t, newConfig(t, "tower.example.com"))

		assert.Equal(t, "https://tower.example.com/api/v1/job_events/?id__gt=42&order_by=id", c.PageURL(42))
	})

	t.Run("extra params are merged and cannot override paging", func(t *testing.T) {
		cfg := newConfig(t, "tower.example.com")
		cfg.Category = input.ActivityStream
		cfg.ExtraQueryParams = url.Values{"job__name": {"deploy"}, "order_by": {"-id"}}
		c := newClient(t, cfg)

		u, err := url.Parse(c.PageURL(0))
		require.NoError(t, err)

		assert.Equal(t, "/api/v1/activity_stream/", u.Path)
		assert.Equal(t, "deploy", u.Query().Get("job__name"))
		assert.Equal(t, []string{"id"}, u.Query()["order_by"])
		assert.Equal(t, "0", u.Query().Get("id__gt"))
	})
}

func TestClient_FetchPage(t *testing.T) {
	ctx := context.Background()

	t.Run("records in received order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"count":3,"results":[{"id":5},{"id":7,"x":"y"},{"id":6}]}`))
		}))
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))

		page, err := c.FetchPage(ctx, 0)

		require.NoError(t, err)
		require.Len(t, page.Records, 3)
		assert.Equal(t, []int64{5, 7, 6}, []int64{page.Records[0].ID, page.Records[1].ID, page.Records[2].ID})
		assert.JSONEq(t, `{"id":7,"x":"y"}`, string(page.Records[1].Raw))
		assert.Equal(t, int64(7), page.MaxID(0))
	})

	t.Run("missing results means exhausted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"count":0}`))
		}))
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))

		page, err := c.FetchPage(ctx, 10)

		require.NoError(t, err)
		assert.True(t, page.Exhausted())
	})

	statusCases := []struct {
		status int
		kind   string
	}{
		{http.StatusUnauthorized, "credential"},
		{http.StatusForbidden, "credential"},
		{http.StatusInternalServerError, "transient"},
		{http.StatusBadGateway, "transient"},
		{http.StatusNotFound, "transient"},
	}
	for _, tc := range statusCases {
		t.Run(fmt.Sprintf("status %d is %s", tc.status, tc.kind), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()
			c := newClient(t, newConfig(t, srv.URL))

			_, err := c.FetchPage(ctx, 0)

			require.Error(t, err)
			assert.Equal(t, tc.kind, input.Kind(err))
		})
	}

	bodyCases := map[string]string{
		"malformed json":   `{"results":[`,
		"missing id":       `{"results":[{"event":"x"}]}`,
		"non-integer id":   `{"results":[{"id":1.5}]}`,
		"string id":        `{"results":[{"id":"5"}]}`,
		"null id":          `{"results":[{"id":null}]}`,
		"results not list": `{"results":{"id":1}}`,
	}
	for name, body := range bodyCases {
		t.Run(name+" is a protocol error", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()
			c := newClient(t, newConfig(t, srv.URL))

			_, err := c.FetchPage(ctx, 0)

			var protoErr *input.ProtocolError
			require.ErrorAs(t, err, &protoErr)
			assert.True(t, input.Retryable(err))
		})
	}

	t.Run("connection refused is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()
		c := newClient(t, newConfig(t, addr))

		_, err := c.FetchPage(ctx, 0)

		var transErr *input.TransientError
		require.ErrorAs(t, err, &transErr)
	})

	t.Run("request timeout is transient", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)
		cfg := newConfig(t, srv.URL)
		cfg.RequestTimeout = 50 * time.Millisecond
		c := newClient(t, cfg)

		_, err := c.FetchPage(ctx, 0)

		assert.Equal(t, "transient", input.Kind(err))
	})

	t.Run("tls without verification", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[]}`))
		}))
		defer srv.Close()
		cfg := newConfig(t, srv.URL)
		cfg.VerifySSL = false
		c := newClient(t, cfg)

		page, err := c.FetchPage(ctx, 0)

		require.NoError(t, err)
		assert.True(t, page.Exhausted())
	})

	t.Run("tls with verification rejects unknown certificate", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[]}`))
		}))
		defer srv.Close()
		cfg := newConfig(t, srv.URL)
		cfg.VerifySSL = true
		c := newClient(t, cfg)

		_, err := c.FetchPage(ctx, 0)

		assert.Equal(t, "transient", input.Kind(err))
	})
}

func TestClient_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("drains every page and stops on empty", func(t *testing.T) {
		fake := &fakeTower{ids: []int64{1, 2, 3, 4, 5, 6, 7}, pageSize: 3}
		srv := httptest.NewServer(fake)
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))

		var seen []int64
		var commits []int64
		cursor, pages, err := c.Drain(ctx, 0, func(_ context.Context, page input.Page, next int64) error {
			for _, r := range page.Records {
				seen = append(seen, r.ID)
			}
			commits = append(commits, next)
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, int64(7), cursor)
		assert.Equal(t, 3, pages)
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, seen)
		assert.Equal(t, []int64{3, 6, 7}, commits)
		require.Len(t, fake.requests, 4)
		assert.Equal(t, "7", fake.requests[3].Get("id__gt"))
	})

	t.Run("resumes from cursor", func(t *testing.T) {
		fake := &fakeTower{ids: []int64{1, 2, 3, 4}, pageSize: 10}
		srv := httptest.NewServer(fake)
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))

		var seen []int64
		cursor, _, err := c.Drain(ctx, 2, func(_ context.Context, page input.Page, next int64) error {
			for _, r := range page.Records {
				seen = append(seen, r.ID)
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, int64(4), cursor)
		assert.Equal(t, []int64{3, 4}, seen)
	})

	t.Run("handler error stops the loop", func(t *testing.T) {
		fake := &fakeTower{ids: []int64{1, 2, 3, 4}, pageSize: 2}
		srv := httptest.NewServer(fake)
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))
		boom := errors.New("sink down")

		cursor, pages, err := c.Drain(ctx, 0, func(context.Context, input.Page, int64) error {
			return boom
		})

		require.ErrorIs(t, err, boom)
		assert.Zero(t, cursor)
		assert.Zero(t, pages)
	})

	t.Run("page that does not advance is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"id":3},{"id":2}]}`))
		}))
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))
		called := false

		_, _, err := c.Drain(ctx, 5, func(context.Context, input.Page, int64) error {
			called = true
			return nil
		})

		require.ErrorIs(t, err, tower.ErrStalled)
		assert.Equal(t, "protocol", input.Kind(err))
		assert.False(t, called)
	})

	t.Run("cancellation between pages", func(t *testing.T) {
		fake := &fakeTower{ids: []int64{1, 2, 3, 4}, pageSize: 1}
		srv := httptest.NewServer(fake)
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		cursor, pages, err := c.Drain(cctx, 0, func(context.Context, input.Page, int64) error {
			cancel()
			return nil
		})

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(1), cursor)
		assert.Equal(t, 1, pages)
	})
}

func TestClient_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("tower server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/config/", r.URL.Path)
			_, _ = w.Write([]byte(`{"version":"3.8.6","license_info":{}}`))
		}))
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))

		version, err := c.Validate(ctx)

		require.NoError(t, err)
		assert.Equal(t, "3.8.6", version)
	})

	t.Run("not a tower server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"hello":"world"}`))
		}))
		defer srv.Close()
		c := newClient(t, newConfig(t, srv.URL))

		_, err := c.Validate(ctx)

		assert.Equal(t, "configuration", input.Kind(err))
		assert.Contains(t, err.Error(), "does not appear to be a Tower server")
	})

	t.Run("bad credentials", func(t *testing.T) {
		srv := httptest.NewServer(&fakeTower{})
		defer srv.Close()
		cfg := newConfig(t, srv.URL)
		cfg.Password = "wrong"
		c := newClient(t, cfg)

		_, err := c.Validate(ctx)

		assert.Equal(t, "credential", input.Kind(err))
	})
}

func TestClient_DebugLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	t.Run("debug level logs each request", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
		c, err := tower.NewClient(newConfig(t, srv.URL), logger)
		require.NoError(t, err)

		_, err = c.FetchPage(context.Background(), 0)

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "GET "+srv.URL+"/api/v1/job_events/?id__gt=0&order_by=id -> 200")
	})

	t.Run("warning level stays quiet", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf).Level(zerolog.WarnLevel)
		c, err := tower.NewClient(newConfig(t, srv.URL), logger)
		require.NoError(t, err)

		_, err = c.FetchPage(context.Background(), 0)

		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})
}
