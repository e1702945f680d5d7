package domain

import (
	"testing"

	"cmsstore/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "the object model is a leaf package")
}

func TestDomainDoesNotImportTransport(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.TransportImportForbidden, "processors own the transport")
}
