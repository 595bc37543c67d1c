// Package seed loads catalog seed files and upserts them into a store.
//
// A seed file lists deployments and the events that expose them:
//
//	deployments:
//	  - catalog_id: c1
//	    deployment_name: gpt-4o
//	    model_type: openai-chat
//	    endpoint_url: https://contoso.openai.azure.com
//	    endpoint_key: ${secret:contoso-aoai-key}
//	events:
//	  - id: ev1
//	    code: contoso
//	    start: 2026-03-01T08:00:00Z
//	    end: 2026-03-02T18:00:00Z
//	    max_token_cap: 4096
//	    daily_request_cap: 500
//	    deployments: [c1]
//
// Endpoint keys may hold ${secret:name} references, resolved at import.
// The store seals them on write.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store"
)

// Catalog is the decoded seed file.
type Catalog struct {
	Deployments []Deployment `yaml:"deployments"`
	Events      []Event      `yaml:"events"`
}

// Deployment is one catalog entry.
type Deployment struct {
	CatalogID      string `yaml:"catalog_id"`
	DeploymentName string `yaml:"deployment_name"`
	ModelType      string `yaml:"model_type"`
	EndpointURL    string `yaml:"endpoint_url"`
	EndpointKey    string `yaml:"endpoint_key"`
	Location       string `yaml:"location"`
	Active         *bool  `yaml:"active"`
}

// Event is one event and the catalog ids linked to it.
type Event struct {
	ID              string    `yaml:"id"`
	Code            string    `yaml:"code"`
	Markdown        string    `yaml:"markdown"`
	ImageURL        string    `yaml:"image_url"`
	OrganizerName   string    `yaml:"organizer_name"`
	OrganizerEmail  string    `yaml:"organizer_email"`
	Start           time.Time `yaml:"start"`
	End             time.Time `yaml:"end"`
	TimeZoneLabel   string    `yaml:"time_zone_label"`
	TimeZoneOffset  int       `yaml:"time_zone_offset"`
	MaxTokenCap     int       `yaml:"max_token_cap"`
	DailyRequestCap int       `yaml:"daily_request_cap"`
	Active          *bool     `yaml:"active"`
	Deployments     []string  `yaml:"deployments"`
}

// Resolver expands secret references in a value.
type Resolver func(ctx context.Context, value string) (string, error)

// Progress receives one tick per applied item.
type Progress interface {
	Start(total int64)
	Update(current int64)
	Finish()
}

// Result counts what Apply wrote.
type Result struct {
	Deployments int `json:"deployments"`
	Events      int `json:"events"`
	Links       int `json:"links"`
}

// Load reads and validates a seed file.
func Load(path string) (*Catalog, error) {
	// #nosec G304 - operator-supplied seed path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required fields, model types, windows and that every
// event link names a deployment in the file. All problems are joined.
func (c *Catalog) Validate() error {
	var errs []error
	ids := make(map[string]bool, len(c.Deployments))

	for i, d := range c.Deployments {
		at := fmt.Sprintf("deployments[%d]", i)
		switch {
		case d.CatalogID == "":
			errs = append(errs, fmt.Errorf("%s: catalog_id is required", at))
		case ids[d.CatalogID]:
			errs = append(errs, fmt.Errorf("%s: duplicate catalog_id %q", at, d.CatalogID))
		}
		ids[d.CatalogID] = true
		if d.DeploymentName == "" {
			errs = append(errs, fmt.Errorf("%s: deployment_name is required", at))
		}
		if !gateway.ModelType(d.ModelType).Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown model_type %q", at, d.ModelType))
		}
		if d.EndpointURL == "" {
			errs = append(errs, fmt.Errorf("%s: endpoint_url is required", at))
		}
	}

	for i, e := range c.Events {
		at := fmt.Sprintf("events[%d]", i)
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", at))
		}
		if e.Code == "" {
			errs = append(errs, fmt.Errorf("%s: code is required", at))
		}
		if e.Start.IsZero() || e.End.IsZero() || !e.End.After(e.Start) {
			errs = append(errs, fmt.Errorf("%s: end must be after start", at))
		}
		if e.MaxTokenCap < 0 || e.DailyRequestCap < 0 {
			errs = append(errs, fmt.Errorf("%s: caps cannot be negative", at))
		}
		for _, id := range e.Deployments {
			if !ids[id] {
				errs = append(errs, fmt.Errorf("%s: unknown deployment %q", at, id))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply upserts deployments, then events, then links. resolve and progress
// may be nil.
func (c *Catalog) Apply(ctx context.Context, w store.CatalogWriter, resolve Resolver, progress Progress) (Result, error) {
	var res Result
	total := int64(len(c.Deployments) + len(c.Events))
	if progress != nil {
		progress.Start(total)
		defer progress.Finish()
	}
	var done int64
	tick := func() {
		done++
		if progress != nil {
			progress.Update(done)
		}
	}

	for _, d := range c.Deployments {
		key := d.EndpointKey
		if resolve != nil {
			var err error
			if key, err = resolve(ctx, key); err != nil {
				return res, fmt.Errorf("deployment %s: %w", d.CatalogID, err)
			}
		}
		dep := gateway.Deployment{
			CatalogID:      d.CatalogID,
			DeploymentName: d.DeploymentName,
			ModelType:      gateway.ModelType(d.ModelType),
			EndpointURL:    strings.TrimRight(d.EndpointURL, "/"),
			EndpointKey:    key,
			Location:       d.Location,
		}
		if err := w.PutDeployment(ctx, dep, boolOr(d.Active, true)); err != nil {
			return res, fmt.Errorf("deployment %s: %w", d.CatalogID, err)
		}
		res.Deployments++
		tick()
	}

	for _, e := range c.Events {
		ev := &gateway.Event{
			ID:              e.ID,
			Code:            e.Code,
			Markdown:        e.Markdown,
			ImageURL:        e.ImageURL,
			OrganizerName:   e.OrganizerName,
			OrganizerEmail:  e.OrganizerEmail,
			Start:           e.Start.UTC(),
			End:             e.End.UTC(),
			TimeZoneLabel:   e.TimeZoneLabel,
			TimeZoneOffset:  e.TimeZoneOffset,
			MaxTokenCap:     e.MaxTokenCap,
			DailyRequestCap: e.DailyRequestCap,
			Active:          boolOr(e.Active, true),
		}
		if err := w.PutEvent(ctx, ev); err != nil {
			return res, fmt.Errorf("event %s: %w", e.ID, err)
		}
		res.Events++

		for _, id := range e.Deployments {
			if err := w.LinkDeployment(ctx, e.ID, id); err != nil {
				return res, fmt.Errorf("link %s -> %s: %w", e.ID, id, err)
			}
			res.Links++
		}
		tick()
	}
	return res, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
