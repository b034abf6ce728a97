package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/onein50million/counter-attack"

// rule forbids packages under Scope from importing anything under Forbidden.
type rule struct {
	Scope     string
	Forbidden []string
}

// coreRules keep the deterministic simulation packages free of I/O,
// randomness and the layers built on top of them.
func coreRules() []rule {
	forbidden := []string{
		modulePath + "/logging",
		modulePath + "/internal/app",
		modulePath + "/internal/config",
		modulePath + "/internal/net",
		modulePath + "/internal/observability",
		modulePath + "/internal/rollback",
		modulePath + "/internal/sim",
		modulePath + "/internal/telemetry",
		"go.opentelemetry.io/",
		"github.com/gorilla/websocket",
		"math/rand",
		"net",
		"os",
	}
	var rules []rule
	for _, pkg := range []string{"frame", "state", "combat", "clash", "event"} {
		rules = append(rules, rule{Scope: modulePath + "/internal/" + pkg, Forbidden: forbidden})
	}
	// The rollback transport must not reach back into the stepper.
	rules = append(rules, rule{
		Scope:     modulePath + "/internal/rollback",
		Forbidden: []string{modulePath + "/internal/sim", modulePath + "/logging"},
	})
	return rules
}

func main() {
	var dir string
	flag.StringVar(&dir, "dir", ".", "module root to check")
	flag.Parse()

	cfg := &packages.Config{
		Dir:  dir,
		Mode: packages.NeedName | packages.NeedImports,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "depscheck: package %s reported errors: %v\n", pkg.PkgPath, pkg.Errors[0])
			os.Exit(1)
		}
	}

	violations := findViolations(pkgs, coreRules())
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func findViolations(pkgs []*packages.Package, rules []rule) []string {
	var violations []string
	for _, pkg := range pkgs {
		for _, r := range rules {
			if !withinPath(pkg.PkgPath, r.Scope) {
				continue
			}
			for imp := range pkg.Imports {
				for _, forbidden := range r.Forbidden {
					if withinPath(imp, forbidden) {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.PkgPath, imp))
					}
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}

// withinPath reports whether path is prefix itself or nested below it. A
// prefix ending in "/" matches any path starting with it.
func withinPath(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
