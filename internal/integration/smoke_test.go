package integration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"cmsstore/internal/blob"
	"cmsstore/internal/core"
	"cmsstore/internal/infra/persistence/memory"
	"cmsstore/internal/infra/persistence/objectstore"
	"cmsstore/internal/infra/persistence/postgres"
	"cmsstore/internal/infra/persistence/postgres/testutil"
	"cmsstore/internal/infra/persistence/sqlite"
	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/pkg/domain"
)

const smokeConfig = `<PSXProcessorConfig>
  <component type="PSFolder"><processor category="local" impl="doc"/></component>
  <component type="PSRelationship"><processor category="local" impl="doc"/></component>
</PSXProcessorConfig>`

// TestIntegrationSmoke runs a folder write/read/link/delete cycle through
// the proxy for every document store backend.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	variants := []struct {
		name string
		open func(t *testing.T) docproc.Store
	}{
		{
			name: "memory",
			open: func(*testing.T) docproc.Store { return memory.NewStore() },
		},
		{
			name: "sqlite",
			open: func(t *testing.T) docproc.Store {
				s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "cms.db"))
				if err != nil {
					t.Fatalf("open sqlite: %v", err)
				}
				return s
			},
		},
		{
			name: "postgres-stub",
			open: func(t *testing.T) docproc.Store {
				db, _ := testutil.NewStubDB()
				restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
				t.Cleanup(restore)
				s, err := postgres.Open(ctx, "")
				if err != nil {
					t.Fatalf("open postgres: %v", err)
				}
				return s
			},
		},
		{
			name: "memory-blob",
			open: func(t *testing.T) docproc.Store {
				s, err := objectstore.New(blob.NewMemory())
				if err != nil {
					t.Fatalf("new object store: %v", err)
				}
				return s
			},
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) docproc.Store {
				bs, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, Root: t.TempDir()})
				if err != nil {
					t.Fatalf("open filesystem blob: %v", err)
				}
				s, err := objectstore.New(bs)
				if err != nil {
					t.Fatalf("new object store: %v", err)
				}
				return s
			},
		},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			proc, err := docproc.New(v.open(t))
			if err != nil {
				t.Fatalf("new processor: %v", err)
			}
			reg := core.NewRegistry()
			reg.MustRegister("doc", func(*core.ProcessorContext, core.PropertyBag) (core.Processor, error) {
				return proc, nil
			})
			cfg, err := core.LoadConfig(strings.NewReader(smokeConfig))
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			resolver, err := core.NewResolver(cfg, core.CategoryLocal, reg)
			if err != nil {
				t.Fatalf("new resolver: %v", err)
			}
			t.Cleanup(func() { _ = resolver.Close() })

			metrics := core.NewExpvarMetricsRecorder("")
			var traces bytes.Buffer
			tracer := core.NewJSONTracer(&traces)
			proxy, err := core.NewProxy(resolver, core.WithMetricsRecorder(metrics), core.WithTracer(tracer))
			if err != nil {
				t.Fatalf("new proxy: %v", err)
			}

			root := newFolder(t, "site")
			if err := root.SetProperty("theme", "dark"); err != nil {
				t.Fatalf("set property: %v", err)
			}
			entry, err := domain.NewAclEntry(domain.PrincipalRole, "Editor", domain.AccessRead|domain.AccessWrite)
			if err != nil {
				t.Fatalf("new acl entry: %v", err)
			}
			if err := root.Acl().Add(entry); err != nil {
				t.Fatalf("add acl entry: %v", err)
			}
			page := newFolder(t, "pages")
			res, err := proxy.Save(ctx, []domain.Component{root, page})
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if res.Stats.Inserted != 2 {
				t.Fatalf("expected 2 inserts, got %+v", res.Stats)
			}
			if !root.IsPersisted() || !entry.IsPersisted() {
				t.Fatalf("save should persist the folder and its ACL")
			}

			if err := proxy.AddChildren(ctx, root, []domain.Component{page}); err != nil {
				t.Fatalf("add children: %v", err)
			}
			kids, err := proxy.Children(ctx, root)
			if err != nil {
				t.Fatalf("children: %v", err)
			}
			if len(kids) != 1 || !domain.Equal(kids[0], page) {
				t.Fatalf("unexpected children %v", kids)
			}

			loaded, err := proxy.Load(ctx, domain.TypeFolder, []*domain.Key{root.Key()})
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(loaded) != 1 || !domain.EqualFull(root, loaded[0]) {
				t.Fatalf("loaded folder differs from saved one")
			}
			perms := domain.NewFolderPermissions(loaded[0].(*domain.Folder), domain.Principal{Name: "ann", Roles: []string{"editor"}})
			if !perms.HasWriteAccess() || perms.HasAdminAccess() {
				t.Fatalf("unexpected access %s", perms.Access())
			}

			removed, err := proxy.Delete(ctx, []domain.Component{page})
			if err != nil || removed != 1 {
				t.Fatalf("delete: removed=%d err=%v", removed, err)
			}
			if page.Key().IsAssigned() {
				t.Fatalf("deleted component keeps its key")
			}

			snap := metrics.Snapshot()
			if snap.Results[core.OpSave]["success"] != 1 || snap.Results[core.OpChildren]["success"] != 1 {
				t.Fatalf("metrics missing operations: %+v", snap.Results)
			}
			var sawLoad bool
			for _, e := range tracer.Entries() {
				if e.Operation == core.OpLoad && e.Status == "success" {
					sawLoad = true
				}
			}
			if !sawLoad || traces.Len() == 0 {
				t.Fatalf("expected a load span, entries=%+v", tracer.Entries())
			}
		})
	}
}

func newFolder(t *testing.T, name string) *domain.Folder {
	t.Helper()
	f, err := domain.NewFolder(name)
	if err != nil {
		t.Fatalf("new folder: %v", err)
	}
	return f
}
