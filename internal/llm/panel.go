package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kayz/quorum/internal/fanout"
	"github.com/kayz/quorum/internal/logger"
)

// Responses holds one Response per requested provider, in request order.
// It is read-only once returned.
type Responses struct {
	order []string
	byID  map[string]Response
}

// NewResponses indexes rs by provider id, keeping the given order. A repeated
// id keeps its first position and the last value.
func NewResponses(rs ...Response) *Responses {
	out := &Responses{byID: make(map[string]Response, len(rs))}
	for _, r := range rs {
		if _, ok := out.byID[r.ProviderID]; !ok {
			out.order = append(out.order, r.ProviderID)
		}
		out.byID[r.ProviderID] = r
	}
	return out
}

// Len returns the number of responses.
func (r *Responses) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Get returns the response for a provider id.
func (r *Responses) Get(id string) (Response, bool) {
	if r == nil {
		return Response{}, false
	}
	resp, ok := r.byID[id]
	return resp, ok
}

// IDs returns provider ids in request order.
func (r *Responses) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// All returns every response in request order.
func (r *Responses) All() []Response {
	if r == nil {
		return nil
	}
	out := make([]Response, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Succeeded returns the successful responses in request order.
func (r *Responses) Succeeded() []Response {
	var out []Response
	for _, resp := range r.All() {
		if resp.OK() {
			out = append(out, resp)
		}
	}
	return out
}

// Failed returns the failed responses in request order.
func (r *Responses) Failed() []Response {
	var out []Response
	for _, resp := range r.All() {
		if !resp.OK() {
			out = append(out, resp)
		}
	}
	return out
}

// Panel asks the same question of several providers.
type Panel struct {
	providers []*Provider
	mode      fanout.Mode
}

// NewPanel validates the provider set. Ids must be unique and non-empty.
func NewPanel(providers []*Provider, parallel bool) (*Panel, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
		if p.ID() == "" {
			return nil, fmt.Errorf("provider %d has no id", i)
		}
		if seen[p.ID()] {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID())
		}
		seen[p.ID()] = true
	}
	return &Panel{providers: providers, mode: fanout.ModeFor(parallel)}, nil
}

// Providers returns the panel members in request order.
func (p *Panel) Providers() []*Provider {
	return append([]*Provider(nil), p.providers...)
}

// Subset returns a panel of only the named providers, kept in request
// order. Every id must name a member; repeated ids count once.
func (p *Panel) Subset(ids []string) (*Panel, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			want[id] = true
		}
	}
	if len(want) == 0 {
		return nil, ErrNoProviders
	}

	var (
		picked []*Provider
		known  = make(map[string]bool, len(p.providers))
	)
	for _, prov := range p.providers {
		known[prov.ID()] = true
		if want[prov.ID()] {
			picked = append(picked, prov)
		}
	}
	var unknown []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown provider(s) %s; panel has %s",
			strings.Join(unknown, ", "), strings.Join(p.ids(), ", "))
	}
	return &Panel{providers: picked, mode: p.mode}, nil
}

func (p *Panel) ids() []string {
	out := make([]string, len(p.providers))
	for i, prov := range p.providers {
		out[i] = prov.ID()
	}
	return out
}

// Mode reports how QueryAll schedules calls.
func (p *Panel) Mode() fanout.Mode {
	return p.mode
}

// QueryAll sends prompt to every provider and returns exactly one response
// per provider. A provider's failure never affects the others.
func (p *Panel) QueryAll(ctx context.Context, prompt, system string) *Responses {
	tasks := make([]fanout.Task[Response], len(p.providers))
	for i, prov := range p.providers {
		prov := prov
		tasks[i] = fanout.Task[Response]{
			Name: prov.ID(),
			Run: func(ctx context.Context) (Response, error) {
				return prov.Generate(ctx, prompt, system), nil
			},
		}
	}

	start := time.Now()
	logger.Info("[LLM] querying %d providers (%s)", len(tasks), p.mode)
	outcomes := fanout.Run(ctx, p.mode, tasks)

	rs := make([]Response, len(outcomes))
	ok := 0
	for i, out := range outcomes {
		resp := out.Value
		if out.Err != nil {
			// Generate does not fail; this only covers a cancelled parent.
			resp = Response{
				ProviderID:   p.providers[i].ID(),
				Model:        p.providers[i].Model(),
				FinishReason: FinishError,
				Elapsed:      out.Elapsed,
				Err:          &CallError{Provider: p.providers[i].ID(), Kind: classify(out.Err), Err: out.Err},
			}
		}
		if resp.OK() {
			ok++
		}
		rs[i] = resp
	}
	logger.Info("[LLM] %d/%d providers answered in %s", ok, len(rs), time.Since(start).Round(time.Millisecond))
	return NewResponses(rs...)
}
