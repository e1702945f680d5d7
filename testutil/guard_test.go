package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestImportPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{InternalImportForbidden, "cmsstore/internal/core", true},
		{InternalImportForbidden, "cmsstore/pkg/domain", false},
		{InfraImportForbidden, "cmsstore/internal/infra/processor/memory", true},
		{InfraImportForbidden, "cmsstore/internal/core", false},
		{TransportImportForbidden, "net/http", true},
		{TransportImportForbidden, "github.com/gin-gonic/gin", true},
		{TransportImportForbidden, "net/url", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.pred(c.in), c.in)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
	}
	write("ok.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	write("bad.go", "package tmp\nimport \"cmsstore/internal/core\"\nvar _ = core.Registry{}\n")
	write("bad_test.go", "package tmp\nimport \"cmsstore/internal/infra/blob\"\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	viols, err := directImportViolations(dir, InternalImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmsstore/internal/core (in bad.go)"}, viols)

	rec := &recordingFatal{}
	failIfDirectViolations(rec, "layering", viols)
	assert.Contains(t, rec.msg, "forbidden direct imports")

	rec = &recordingFatal{}
	failIfDirectViolations(rec, "layering", nil)
	assert.Empty(t, rec.msg)
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	_, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden)
	assert.Error(t, err)
}

func TestTransitiveViolationsReportsFailures(t *testing.T) {
	rec := &recordingFatal{}
	failIfTransitiveViolations(rec, "reason", []string{"a"})
	assert.Contains(t, rec.msg, "forbidden transitive dependency")
}

func TestAssertNoTransitiveDependencyOnDomain(t *testing.T) {
	AssertNoTransitiveDependency(t, "cmsstore/pkg/domain", InfraImportForbidden, "domain must not reach processors")
}
