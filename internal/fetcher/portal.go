package fetcher

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tramites-sync/internal/model"
	"github.com/sells-group/tramites-sync/internal/resilience"
)

// DefaultBaseURL is the public procedures API.
const DefaultBaseURL = "https://www.gob.bo/ws/api/portal"

// progressEvery controls how often FetchAll logs progress.
const progressEvery = 100

// PortalOptions configures the portal client.
type PortalOptions struct {
	BaseURL     string
	PageSize    int
	Concurrency int
	// MaxRecords caps how many details are fetched; 0 means all.
	MaxRecords int
	Retry      resilience.Policy
	// BreakerThreshold is the number of consecutive transient detail
	// failures after which remaining details fail fast; 0 disables it.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// ListingEntry is one row of the paginated procedures index.
type ListingEntry struct {
	ID   model.Value `json:"id"`
	Name string      `json:"nombre"`
	Slug string      `json:"slug"`
}

// FetchFailure records a procedure whose detail could not be downloaded.
type FetchFailure struct {
	ID    model.Value `json:"id"`
	Name  string      `json:"nombre"`
	Slug  string      `json:"slug"`
	Error string      `json:"error"`
	Kind  string      `json:"kind"`
}

type listingResponse struct {
	Datos struct {
		Filas []ListingEntry `json:"filas"`
		Total int            `json:"total"`
	} `json:"datos"`
}

type detailResponse struct {
	Datos model.Value `json:"datos"`
}

// Portal talks to the procedures API.
type Portal struct {
	getter  JSONGetter
	opts    PortalOptions
	breaker *resilience.Breaker
	log     *zap.Logger
}

// NewPortal creates a portal client on top of getter.
func NewPortal(getter JSONGetter, opts PortalOptions) *Portal {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = 30
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	return &Portal{
		getter:  getter,
		opts:    opts,
		breaker: resilience.NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		log:     zap.L().With(zap.String("component", "portal")),
	}
}

func (p *Portal) listURL(page int) string {
	q := url.Values{}
	q.Set("pagina", strconv.Itoa(page))
	q.Set("limite", strconv.Itoa(p.opts.PageSize))
	return p.opts.BaseURL + "/tramites?" + q.Encode()
}

func (p *Portal) detailURL(slug string) string {
	return p.opts.BaseURL + "/tramites/" + url.PathEscape(slug)
}

// List pages through the procedures index until the reported total is
// reached or a page comes back empty.
func (p *Portal) List(ctx context.Context) ([]ListingEntry, error) {
	retry := p.opts.Retry
	if retry.Notify == nil {
		retry.Notify = resilience.LogRetries("portal", "list")
	}

	var entries []ListingEntry
	for page := 1; ; page++ {
		resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (listingResponse, error) {
			var r listingResponse
			err := p.getter.GetJSON(ctx, p.listURL(page), &r)
			return r, err
		})
		if err != nil {
			return nil, eris.Wrapf(err, "portal: list page %d", page)
		}

		entries = append(entries, resp.Datos.Filas...)
		p.log.Debug("portal: listed page",
			zap.Int("page", page),
			zap.Int("collected", len(entries)),
			zap.Int("total", resp.Datos.Total),
		)

		if len(resp.Datos.Filas) == 0 || len(entries) >= resp.Datos.Total {
			break
		}
		if p.opts.MaxRecords > 0 && len(entries) >= p.opts.MaxRecords {
			break
		}
	}

	p.log.Info("portal: listing complete", zap.Int("entries", len(entries)))
	return entries, nil
}

// Detail downloads one procedure and returns its "datos" object.
func (p *Portal) Detail(ctx context.Context, slug string) (model.Value, error) {
	if strings.TrimSpace(slug) == "" {
		return model.Value{}, eris.New("portal: entry has no slug")
	}

	retry := p.opts.Retry
	if retry.Notify == nil {
		retry.Notify = resilience.LogRetries("portal", "detail")
	}

	if err := p.breaker.Allow(); err != nil {
		return model.Value{}, eris.Wrapf(err, "portal: detail %s", slug)
	}
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (detailResponse, error) {
		var r detailResponse
		err := p.getter.GetJSON(ctx, p.detailURL(slug), &r)
		return r, err
	})
	// Only upstream trouble counts toward the breaker; a 404 for a stale
	// slug proves nothing about portal health.
	if err == nil || resilience.IsTransient(err) {
		p.breaker.Record(err)
	} else {
		p.breaker.Release()
	}
	if err != nil {
		return model.Value{}, eris.Wrapf(err, "portal: detail %s", slug)
	}

	if resp.Datos.Kind() != model.KindObject {
		return model.Value{}, eris.Errorf("portal: detail %s: datos is %s, not an object", slug, resp.Datos.Kind())
	}
	return resp.Datos, nil
}

// FetchAll downloads the detail of every listing entry with bounded
// concurrency. Per-entry failures are collected, not returned; the error is
// non-nil only when ctx ends. Records keep listing order.
func (p *Portal) FetchAll(ctx context.Context, entries []ListingEntry) ([]model.Value, []FetchFailure, error) {
	if p.opts.MaxRecords > 0 && len(entries) > p.opts.MaxRecords {
		entries = entries[:p.opts.MaxRecords]
	}

	// Indexed slots keep output in listing order regardless of completion order.
	results := make([]model.Value, len(entries))
	failed := make([]*FetchFailure, len(entries))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, entry := range entries {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			datos, err := p.Detail(gctx, entry.Slug)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed[i] = &FetchFailure{
					ID:    entry.ID,
					Name:  entry.Name,
					Slug:  entry.Slug,
					Error: err.Error(),
					Kind:  resilience.Classify(err),
				}
			} else {
				results[i] = datos
			}

			if n := done.Add(1); n%progressEvery == 0 {
				p.log.Info("portal: fetching details",
					zap.Int64("done", n),
					zap.Int("total", len(entries)),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "portal: fetch details")
	}

	records := make([]model.Value, 0, len(results))
	var failures []FetchFailure
	for i, v := range results {
		switch {
		case failed[i] != nil:
			failures = append(failures, *failed[i])
		case !v.IsAbsent():
			records = append(records, v)
		}
	}

	p.log.Info("portal: details fetched",
		zap.Int("records", len(records)),
		zap.Int("failures", len(failures)),
	)
	return records, failures, nil
}
