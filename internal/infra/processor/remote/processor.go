// Package remote implements core.Processor by calling a peer cmsstored over
// its XML HTTP API.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cmsstore/internal/core"
	"cmsstore/internal/wire"
	"cmsstore/pkg/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxBody        = 32 << 20
)

// Option configures a Processor.
type Option func(*Processor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Processor) {
		if c != nil {
			p.client = c
		}
	}
}

// WithCatalog sets the catalog used to decode responses.
func WithCatalog(c *domain.Catalog) Option {
	return func(p *Processor) {
		if c != nil {
			p.catalog = c
		}
	}
}

// Processor forwards storage work to a peer.
type Processor struct {
	base    *url.URL
	client  *http.Client
	catalog *domain.Catalog
}

var _ core.Processor = (*Processor)(nil)

// New returns a processor talking to the peer at baseURL.
func New(baseURL string, opts ...Option) (*Processor, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse peer url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("peer url %q must be an absolute http(s) url", baseURL)
	}
	p := &Processor{
		base:    u,
		client:  &http.Client{Timeout: defaultTimeout},
		catalog: domain.DefaultCatalog(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// URL returns the peer base url.
func (p *Processor) URL() string { return p.base.String() }

func (p *Processor) post(ctx context.Context, op, path string, query url.Values, body *domain.Element) (*domain.Element, error) {
	payload, err := domain.MarshalXML(body)
	if err != nil {
		return nil, err
	}
	target := *p.base
	target.Path = p.base.Path + path
	target.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", wire.ContentType)
	req.Header.Set("Accept", wire.ContentType)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, target.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if el, perr := domain.UnmarshalXML(data); perr == nil && el.Name == wire.NodeFault {
			return nil, wire.DecodeFault(op, el)
		}
		return nil, fmt.Errorf("%s: peer returned %s", op, resp.Status)
	}
	el, err := domain.UnmarshalXML(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	return el, nil
}

func typeQuery(t domain.ComponentType) url.Values {
	return url.Values{wire.QueryType: []string{string(t)}}
}

func compact(components []domain.Component) []domain.Component {
	out := make([]domain.Component, 0, len(components))
	for _, c := range components {
		if !domain.IsNil(c) {
			out = append(out, c)
		}
	}
	return out
}

// Load implements core.Processor.
func (p *Processor) Load(ctx context.Context, t domain.ComponentType, keys []*domain.Key) ([]domain.Component, error) {
	for i, k := range keys {
		if k == nil {
			return nil, domain.NewFault(domain.ReasonInvalidArgument, "remote.Load", "key %d is nil", i)
		}
	}
	el, err := p.post(ctx, "remote.Load", wire.PathLoad, typeQuery(t), wire.KeyList(keys))
	if err != nil {
		return nil, err
	}
	return wire.DecodeComponentList(p.catalog, el)
}

// Save implements core.Processor. The peer's stored rendering is read back
// into the caller's components so generated keys and states carry over.
func (p *Processor) Save(ctx context.Context, components []domain.Component) (core.SaveResults, error) {
	sent := compact(components)
	if len(sent) == 0 {
		return core.SaveResults{}, nil
	}
	el, err := p.post(ctx, "remote.Save", wire.PathSave, nil, wire.ComponentList(sent))
	if err != nil {
		return core.SaveResults{}, err
	}
	stats, entries, err := wire.DecodeSaveResults(el)
	if err != nil {
		return core.SaveResults{}, err
	}
	res := core.SaveResults{Stats: stats}
	for _, e := range entries {
		if e.Index < 0 || e.Index >= len(sent) {
			return res, domain.NewFault(domain.ReasonMalformedElement, "remote.Save", "saved index %d out of range", e.Index)
		}
		c := sent[e.Index]
		if err := domain.Unmarshal(e.Element, c); err != nil {
			return res, err
		}
		res.Components = append(res.Components, c)
	}
	return res, nil
}

// Delete implements core.Processor.
func (p *Processor) Delete(ctx context.Context, components []domain.Component) (int, error) {
	sent := compact(components)
	if len(sent) == 0 {
		return 0, nil
	}
	el, err := p.post(ctx, "remote.Delete", wire.PathDelete, nil, wire.ComponentList(sent))
	if err != nil {
		return 0, err
	}
	n, removed, err := wire.DecodeDeleteResults(el)
	if err != nil {
		return 0, err
	}
	for _, i := range removed {
		if i >= 0 && i < len(sent) {
			sent[i].Key().Clear()
		}
	}
	return n, nil
}

// DeleteKeys implements core.Processor.
func (p *Processor) DeleteKeys(ctx context.Context, t domain.ComponentType, keys []*domain.Key) (int, error) {
	sent := make([]*domain.Key, 0, len(keys))
	for _, k := range keys {
		if k != nil {
			sent = append(sent, k)
		}
	}
	el, err := p.post(ctx, "remote.DeleteKeys", wire.PathDeleteKeys, typeQuery(t), wire.KeyList(sent))
	if err != nil {
		return 0, err
	}
	n, removed, err := wire.DecodeDeleteResults(el)
	if err != nil {
		return 0, err
	}
	for _, i := range removed {
		if i >= 0 && i < len(sent) {
			sent[i].Clear()
		}
	}
	return n, nil
}
