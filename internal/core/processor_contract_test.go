package core

import (
	"go/types"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestProcessorImplementationsStayInInfra ensures concrete core.Processor
// implementations only live in the sanctioned processor packages. A new
// backend needs an explicit entry here.
func TestProcessorImplementationsStayInInfra(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes, Tests: true}
	pkgs, err := packages.Load(cfg, "cmsstore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var processor *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "cmsstore/internal/core" || p.Types == nil {
			continue
		}
		obj := p.Types.Scope().Lookup("Processor")
		if obj == nil {
			t.Fatalf("core.Processor not found")
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("core.Processor is not an interface")
		}
		processor = iface
		break
	}
	if processor == nil {
		t.Fatalf("failed to resolve Processor interface")
	}
	allowed := map[string]struct{}{
		"cmsstore/internal/infra/processor/docproc": {},
		"cmsstore/internal/infra/processor/remote":  {},
		"cmsstore/internal/core":                    {}, // test stubs
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil || p.Types.Scope() == nil {
			continue
		}
		path := strings.TrimSuffix(p.PkgPath, "_test")
		for _, name := range p.Types.Scope().Names() {
			named, ok := p.Types.Scope().Lookup(name).Type().(*types.Named)
			if !ok {
				continue
			}
			if _, ok := named.Underlying().(*types.Interface); ok {
				continue
			}
			if types.Implements(named, processor) || types.Implements(types.NewPointer(named), processor) {
				if _, ok := allowed[path]; !ok {
					unexpected = append(unexpected, p.PkgPath+"."+name)
				}
			}
		}
	}
	if len(unexpected) > 0 {
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("unexpected Processor implementations (extend the allowed list when adding a backend):\nfile=%s:%d\n%s", filepath.Base(file), line, unexpected)
	}
}
