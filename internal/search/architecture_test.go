package search_test

import (
	"testing"

	"deident/testutil"
)

// The traversal engine is pure algorithm code over the lattice. It must not
// reach into infra backends or third-party libraries.
func TestSearchImportsStayPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden,
		"internal/search must not import infra backends")
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImportForbidden("deident"),
		"internal/search must be standard library only")
	testutil.AssertNoTransitiveDependency(t, "deident/internal/search", testutil.InfraImportForbidden,
		"internal/search must not depend on infra backends transitively")
}
