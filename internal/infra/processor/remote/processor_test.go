package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmsstore/internal/core"
	"cmsstore/internal/wire"
	"cmsstore/pkg/domain"
)

type peer struct {
	t      *testing.T
	status int
	reply  func(req *domain.Element) *domain.Element
	raw    string
	paths  []string
}

func (p *peer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.paths = append(p.paths, r.URL.RequestURI())
	body, err := io.ReadAll(r.Body)
	require.NoError(p.t, err)
	w.Header().Set("Content-Type", wire.ContentType)
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if p.raw != "" {
		_, _ = io.WriteString(w, p.raw)
		return
	}
	req, err := domain.UnmarshalXML(body)
	require.NoError(p.t, err)
	out, err := domain.MarshalXML(p.reply(req))
	require.NoError(p.t, err)
	_, _ = w.Write(out)
}

func newPeer(t *testing.T, p *peer) *Processor {
	t.Helper()
	p.t = t
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	proc, err := New(srv.URL+"/", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return proc
}

func TestNewValidatesURL(t *testing.T) {
	for _, bad := range []string{"", "peer:8080", "ftp://peer", "http://", "://x"} {
		_, err := New(bad)
		assert.Error(t, err, bad)
	}
	p, err := New(" https://peer.example/cms/ ")
	require.NoError(t, err)
	assert.Equal(t, "https://peer.example/cms", p.URL())
}

func TestFaultResponsesKeepReason(t *testing.T) {
	proc := newPeer(t, &peer{
		status: http.StatusNotFound,
		reply: func(*domain.Element) *domain.Element {
			return wire.Fault(domain.NewFault(domain.ReasonUnknownComponentType, "Resolver.Resolve", "no processor"))
		},
	})
	_, err := proc.Load(context.Background(), domain.TypeFolder, nil)
	require.Error(t, err)
	assert.True(t, domain.IsReason(err, domain.ReasonUnknownComponentType))
	assert.Contains(t, err.Error(), "no processor")
}

func TestNonXMLErrorResponse(t *testing.T) {
	proc := newPeer(t, &peer{status: http.StatusBadGateway, raw: "upstream down"})
	_, err := proc.Load(context.Background(), domain.TypeFolder, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	_, ok := domain.ReasonOf(err)
	assert.False(t, ok)
}

func TestLoadSendsTypeAndKeys(t *testing.T) {
	var asked []*domain.Key
	p := &peer{reply: func(req *domain.Element) *domain.Element {
		keys, err := wire.DecodeKeyList(req)
		if err != nil {
			return wire.Fault(err)
		}
		asked = keys
		f, _ := domain.NewFolder("found")
		_ = f.Key().Assign("7")
		_ = f.SetPersisted()
		return wire.ComponentList([]domain.Component{f})
	}}
	proc := newPeer(t, p)

	k := domain.MustKey("CONTENTID")
	require.NoError(t, k.Assign("7"))
	got, err := proc.Load(context.Background(), domain.TypeFolder, []*domain.Key{k})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "found", got[0].(*domain.Folder).Name())
	require.Len(t, asked, 1)
	assert.True(t, asked[0].Equal(k))
	assert.Equal(t, wire.PathLoad+"?type=PSFolder", p.paths[0])

	_, err = proc.Load(context.Background(), domain.TypeFolder, []*domain.Key{nil})
	assert.True(t, domain.IsArgument(err))
	assert.Len(t, p.paths, 1, "nil keys are rejected before the request")
}

func TestSaveReadsBackPeerState(t *testing.T) {
	proc := newPeer(t, &peer{reply: func(req *domain.Element) *domain.Element {
		comps, err := wire.DecodeComponentList(domain.DefaultCatalog(), req)
		if err != nil {
			return wire.Fault(err)
		}
		f := comps[0].(*domain.Folder)
		_ = f.Key().Assign("42")
		_ = f.SetPersisted()
		return wire.SaveResults(core.SaveStats{Inserted: 1}, []wire.Saved{{Index: 0, Component: f}})
	}})

	f, err := domain.NewFolder("new")
	require.NoError(t, err)
	res, err := proc.Save(context.Background(), []domain.Component{nil, f})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Inserted)
	require.Len(t, res.Components, 1)
	assert.Same(t, f, res.Components[0])
	assert.True(t, f.IsPersisted())
	assert.Equal(t, "contentid=42", f.Key().String())
}

func TestSaveRejectsIndexOutOfRange(t *testing.T) {
	proc := newPeer(t, &peer{reply: func(req *domain.Element) *domain.Element {
		comps, _ := wire.DecodeComponentList(domain.DefaultCatalog(), req)
		return wire.SaveResults(core.SaveStats{Inserted: 1}, []wire.Saved{{Index: 3, Component: comps[0]}})
	}})
	f, err := domain.NewFolder("new")
	require.NoError(t, err)
	_, err = proc.Save(context.Background(), []domain.Component{f})
	assert.True(t, domain.IsReason(err, domain.ReasonMalformedElement))
}

func TestSaveWithNothingToSendSkipsPeer(t *testing.T) {
	p := &peer{}
	proc := newPeer(t, p)
	res, err := proc.Save(context.Background(), []domain.Component{nil})
	require.NoError(t, err)
	assert.Zero(t, res.Stats)
	assert.Empty(t, p.paths)
}

func TestDeleteClearsRemovedKeys(t *testing.T) {
	proc := newPeer(t, &peer{reply: func(*domain.Element) *domain.Element {
		return wire.DeleteResults(1, []int{1})
	}})
	a, err := domain.NewFolder("a")
	require.NoError(t, err)
	require.NoError(t, a.Key().Assign("1"))
	b, err := domain.NewFolder("b")
	require.NoError(t, err)
	require.NoError(t, b.Key().Assign("2"))

	n, err := proc.Delete(context.Background(), []domain.Component{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, a.Key().IsAssigned())
	assert.False(t, b.Key().IsAssigned())
}

func TestDeleteKeysClearsRemovedKeys(t *testing.T) {
	p := &peer{reply: func(*domain.Element) *domain.Element {
		return wire.DeleteResults(1, []int{0, 9})
	}}
	proc := newPeer(t, p)
	k := domain.MustKey("CONTENTID")
	require.NoError(t, k.Assign("5"))

	n, err := proc.DeleteKeys(context.Background(), domain.TypeFolder, []*domain.Key{nil, k})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, k.IsAssigned())
	assert.Equal(t, wire.PathDeleteKeys+"?type=PSFolder", p.paths[0])
}
