//go:build guardrail

package circle

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// The lifecycle rules must stay portable across stores and transports, so the
// domain package may not reach either layer, directly or transitively.
func TestDomainImportsNeitherStorageNorTransport(t *testing.T) {
	config := &packages.Config{
		Mode:  packages.NeedName | packages.NeedImports | packages.NeedDeps,
		Tests: false,
		Dir:   guardrailRepoRoot(t),
	}
	pkgs, err := packages.Load(config, "./internal/services/circle/domain")
	if err != nil {
		t.Fatalf("load domain package: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatal("domain package load errors")
	}
	if len(pkgs) == 0 {
		t.Fatal("domain package not found")
	}

	seen := map[string]bool{}
	queue := append([]*packages.Package(nil), pkgs...)
	for len(queue) > 0 {
		pkg := queue[0]
		queue = queue[1:]
		if pkg == nil || seen[pkg.PkgPath] {
			continue
		}
		seen[pkg.PkgPath] = true
		for _, imported := range pkg.Imports {
			queue = append(queue, imported)
		}
	}

	var violations []string
	for path := range seen {
		if isForbiddenDomainDependency(path) {
			violations = append(violations, path)
		}
	}
	sort.Strings(violations)
	if len(violations) > 0 {
		t.Fatalf("domain package reaches storage or transport:\n- %s", strings.Join(violations, "\n- "))
	}
}

func TestForbiddenDomainDependencyRules(t *testing.T) {
	for _, path := range []string{
		"github.com/osusu/osusu/internal/services/circle/storage",
		"github.com/osusu/osusu/internal/services/circle/storage/sqlite",
		"github.com/osusu/osusu/internal/services/circle/api/http",
		"github.com/osusu/osusu/internal/services/circle/api/client",
	} {
		if !isForbiddenDomainDependency(path) {
			t.Errorf("expected %s to be forbidden", path)
		}
	}
	for _, path := range []string{
		"github.com/osusu/osusu/internal/platform/errors",
		"github.com/osusu/osusu/internal/services/circle/domain",
		"time",
	} {
		if isForbiddenDomainDependency(path) {
			t.Errorf("expected %s to be allowed", path)
		}
	}
}

func isForbiddenDomainDependency(pkgPath string) bool {
	path := filepath.ToSlash(strings.TrimSpace(pkgPath))
	if path == "" {
		return false
	}
	return strings.Contains(path, "/internal/services/circle/storage") ||
		strings.Contains(path, "/internal/services/circle/api") ||
		strings.Contains(path, "/internal/services/council/storage")
}

func guardrailRepoRoot(t *testing.T) string {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("get working dir: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			t.Fatal("go.mod not found")
		}
		wd = parent
	}
}
