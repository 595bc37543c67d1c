package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/internal/upstreamtest"
	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/providers"
	"mercator-hq/eventgate/pkg/routing"
	"mercator-hq/eventgate/pkg/security/auth"
	"mercator-hq/eventgate/pkg/store/memory"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
	"mercator-hq/eventgate/pkg/usage"
)

// newForwardingEnv wires the real forwarder and usage sink against a fake
// upstream.
func newForwardingEnv(t *testing.T, upstream *upstreamtest.Server) (*testEnv, *usage.Feed) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	cfg := config.NewDefault()
	st := memory.New()
	if err := st.PutEvent(ctx, &gateway.Event{
		ID: "ev1", Code: "contoso", Start: now.Add(-time.Hour), End: now.Add(time.Hour),
		MaxTokenCap: 512, DailyRequestCap: 100, Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutDeployment(ctx, gateway.Deployment{
		CatalogID: "c1", DeploymentName: "gpt-4o", ModelType: gateway.ModelTypeChat,
		EndpointURL: upstream.URL(), EndpointKey: "upstream-secret",
	}, true); err != nil {
		t.Fatal(err)
	}
	if err := st.LinkDeployment(ctx, "ev1", "c1"); err != nil {
		t.Fatal(err)
	}
	st.PutAttendee(gateway.Attendee{APIKey: "attendee-key", EventID: "ev1", UserID: "u1", Active: true})

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	feed := usage.NewFeed(8)
	fwd := providers.New(&cfg.Upstream, usage.NewSink(st, feed, collector), collector)
	t.Cleanup(fwd.Close)

	srv := New(cfg, Dependencies{
		Store:     st,
		Auth:      auth.NewResolver(st, auth.Config{AuthorizedTTL: time.Minute, UnauthorizedTTL: time.Minute}, collector),
		Catalog:   routing.NewResolver(st, routing.Config{MinTTL: time.Minute, MaxTTL: 2 * time.Minute}, collector),
		Forwarder: fwd,
		Feed:      feed,
		Collector: collector,
	}, nil)
	return &testEnv{cfg: cfg, store: st, server: srv}, feed
}

func TestAzureChatIsForwardedAndMetered(t *testing.T) {
	upstream := upstreamtest.NewServer()
	defer upstream.Close()
	upstream.Handle("/openai/deployments/gpt-4o/chat/completions", upstreamtest.Response{
		Body: upstreamtest.ChatCompletion("hello", 12, 8),
	})

	env, feed := newForwardingEnv(t, upstream)
	sub := feed.Subscribe()
	defer feed.Unsubscribe(sub)

	rec := env.do(http.MethodPost,
		"/api/v1/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-01",
		`{"messages":[{"role":"user","content":"hi"}],"max_tokens":100}`,
		map[string]string{"api-key": "attendee-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := gjson.Get(rec.Body.String(), "choices.0.message.content").String(); got != "hello" {
		t.Errorf("content = %q", got)
	}

	reqs := upstream.Requests()
	if len(reqs) != 1 {
		t.Fatalf("upstream saw %d requests, want 1", len(reqs))
	}
	if reqs[0].APIKey != "upstream-secret" {
		t.Errorf("upstream api-key = %q, want the deployment key", reqs[0].APIKey)
	}
	if !gjson.GetBytes(reqs[0].Body, "messages").Exists() {
		t.Errorf("upstream body = %s", reqs[0].Body)
	}

	records := env.store.UsageRecords()
	if len(records) != 1 {
		t.Fatalf("usage records = %d, want 1", len(records))
	}
	if records[0].APIKey != "attendee-key" || records[0].CatalogID != "c1" || records[0].EventID != "ev1" {
		t.Errorf("record = %+v", records[0])
	}
	if got := gjson.GetBytes(records[0].Usage, "total_tokens").Int(); got != 20 {
		t.Errorf("total_tokens = %d, want 20", got)
	}

	select {
	case msg := <-sub.C():
		if gjson.GetBytes(msg, "catalog_id").String() != "c1" {
			t.Errorf("feed message = %s", msg)
		}
		if gjson.GetBytes(msg, "api_key").Exists() {
			t.Error("feed message leaks the attendee key")
		}
	case <-time.After(time.Second):
		t.Fatal("no usage published on the feed")
	}
}

func TestForwardingErrors(t *testing.T) {
	upstream := upstreamtest.NewServer()
	defer upstream.Close()
	upstream.Handle("/openai/deployments/gpt-4o/chat/completions",
		upstreamtest.Error(http.StatusTooManyRequests, "upstream throttled"))

	env, _ := newForwardingEnv(t, upstream)

	tests := []struct {
		name         string
		path         string
		body         string
		want         int
		wantUpstream int
	}{
		{
			name:         "upstream error status is relayed",
			path:         "/api/v1/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-01",
			body:         `{"messages":[]}`,
			want:         http.StatusTooManyRequests,
			wantUpstream: 1,
		},
		{
			name: "unknown deployment",
			path: "/api/v1/openai/deployments/missing/chat/completions?api-version=2024-02-01",
			body: `{"messages":[]}`,
			want: http.StatusNotFound,
		},
		{
			name: "max tokens above event cap",
			path: "/api/v1/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-01",
			body: `{"messages":[],"max_tokens":4096}`,
			want: http.StatusBadRequest,
		},
	}

	seen := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, tt.body, map[string]string{"api-key": "attendee-key"})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
			seen += tt.wantUpstream
			if got := len(upstream.Requests()); got != seen {
				t.Errorf("upstream requests = %d, want %d", got, seen)
			}
		})
	}
}
