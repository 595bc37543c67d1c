package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store/memory"
)

const validSeed = `
deployments:
  - catalog_id: c1
    deployment_name: gpt-4o
    model_type: openai-chat
    endpoint_url: https://contoso.openai.azure.com/
    endpoint_key: ${secret:aoai}
  - catalog_id: c2
    deployment_name: ada
    model_type: openai-embedding
    endpoint_url: https://contoso.openai.azure.com
    endpoint_key: plain
    active: false
events:
  - id: ev1
    code: contoso
    organizer_name: Ada
    start: 2026-03-01T08:00:00Z
    end: 2026-03-02T18:00:00Z
    max_token_cap: 4096
    daily_request_cap: 500
    deployments: [c1, c2]
`

type countingProgress struct {
	total, last int64
	finished    bool
}

func (p *countingProgress) Start(total int64)    { p.total = total }
func (p *countingProgress) Update(current int64) { p.last = current }
func (p *countingProgress) Finish()              { p.finished = true }

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", validSeed, ""},
		{"unknown field", "deployments:\n  - catalog_idd: c1\n", "field catalog_idd not found"},
		{"bad model type", strings.Replace(validSeed, "openai-embedding", "gpt", 1), `unknown model_type "gpt"`},
		{"duplicate id", strings.Replace(validSeed, "catalog_id: c2", "catalog_id: c1", 1), `duplicate catalog_id "c1"`},
		{"unknown link", strings.Replace(validSeed, "[c1, c2]", "[c1, c9]", 1), `unknown deployment "c9"`},
		{"inverted window", strings.Replace(validSeed, "end: 2026-03-02T18:00:00Z", "end: 2026-02-01T00:00:00Z", 1), "end must be after start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	c, err := Parse([]byte(validSeed))
	if err != nil {
		t.Fatal(err)
	}

	st := memory.New()
	resolve := func(_ context.Context, v string) (string, error) {
		return strings.ReplaceAll(v, "${secret:aoai}", "resolved-key"), nil
	}
	progress := &countingProgress{}

	res, err := c.Apply(ctx, st, resolve, progress)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res != (Result{Deployments: 2, Events: 1, Links: 2}) {
		t.Errorf("result = %+v", res)
	}
	if progress.total != 3 || progress.last != 3 || !progress.finished {
		t.Errorf("progress = %+v", progress)
	}

	ev, err := st.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if !ev.Active || ev.MaxTokenCap != 4096 || ev.OrganizerName != "Ada" {
		t.Errorf("event = %+v", ev)
	}

	deps, err := st.LookupDeployment(ctx, "ev1", "gpt-4o")
	if err != nil || len(deps) != 1 {
		t.Fatalf("LookupDeployment = %v, %v", deps, err)
	}
	if deps[0].EndpointKey != "resolved-key" {
		t.Errorf("endpoint key = %q, want resolved reference", deps[0].EndpointKey)
	}
	if deps[0].EndpointURL != "https://contoso.openai.azure.com" {
		t.Errorf("endpoint url = %q, want trailing slash trimmed", deps[0].EndpointURL)
	}

	// inactive deployments are stored but never resolved
	if deps, _ := st.LookupDeployment(ctx, "ev1", "ada"); len(deps) != 0 {
		t.Errorf("inactive deployment resolved: %+v", deps)
	}

	// a second import is an upsert
	if _, err := c.Apply(ctx, st, resolve, nil); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	all, _ := st.ListEventDeployments(ctx, "ev1")
	if len(all) != 1 {
		t.Errorf("ListEventDeployments = %d entries, want 1 active", len(all))
	}
}

func TestApplyResolveFailure(t *testing.T) {
	c, err := Parse([]byte(validSeed))
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("no such secret")
	_, err = c.Apply(context.Background(), memory.New(), func(context.Context, string) (string, error) {
		return "", boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped resolve error", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(validSeed), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Deployments) != 2 || c.Events[0].Deployments[1] != "c2" {
		t.Errorf("catalog = %+v", c)
	}
	if gateway.ModelType(c.Deployments[0].ModelType) != gateway.ModelTypeChat {
		t.Errorf("model type = %q", c.Deployments[0].ModelType)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
