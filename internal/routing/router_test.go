package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andywolf/milestonesync/internal/tracker"
)

func repo(owner, name string) tracker.RepoRef {
	return tracker.RepoRef{Owner: owner, Name: name}
}

func TestNilRouter(t *testing.T) {
	var r *Router

	if r.IsConfigured() {
		t.Error("nil router should not be configured")
	}
	if d := r.Resolve("[MPC] Foo"); d.Resolved() || d.Reason != ReasonUnresolved {
		t.Errorf("nil router Resolve should be unresolved, got %+v", d)
	}
	if repos := r.Repositories(); repos != nil {
		t.Errorf("nil router Repositories should return nil, got %v", repos)
	}
}

func TestRoutePrecedence(t *testing.T) {
	table, err := ParseRoutes([]string{"[MPC]=org/r1", "[Gateway]=org/r2"})
	if err != nil {
		t.Fatalf("ParseRoutes() error = %v", err)
	}
	r := NewRouter(table, nil)

	tests := []struct {
		title      string
		wantRepo   string
		wantReason Reason
	}{
		{title: "[MPC] Foo", wantRepo: "org/r1", wantReason: ReasonRoute},
		{title: "[MPC] Foo mentions [Gateway]", wantRepo: "org/r1", wantReason: ReasonRoute},
		{title: "[Gateway] Bar [MPC]", wantRepo: "org/r2", wantReason: ReasonRoute},
		{title: "Something [MPC]", wantReason: ReasonUnresolved},
		{title: "[mpc] lowercase", wantReason: ReasonUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			d := r.Resolve(tt.title)
			if d.Reason != tt.wantReason {
				t.Fatalf("Resolve(%q).Reason = %s, want %s", tt.title, d.Reason, tt.wantReason)
			}
			if tt.wantRepo == "" {
				if d.Resolved() {
					t.Errorf("Resolve(%q) = %v, want no targets", tt.title, d.Targets)
				}
				return
			}
			if len(d.Targets) != 1 || d.Targets[0].String() != tt.wantRepo {
				t.Errorf("Resolve(%q) = %v, want [%s]", tt.title, d.Targets, tt.wantRepo)
			}
		})
	}
}

func TestFirstMatchWinsOnOverlappingPrefixes(t *testing.T) {
	r := NewRouter(Table{
		{Prefix: "[Co", Target: repo("org", "broad")},
		{Prefix: "[Copro]", Target: repo("org", "narrow")},
	}, nil)

	d := r.Resolve("[Copro] task")
	if d.Prefix != "[Co" || d.Targets[0] != repo("org", "broad") {
		t.Errorf("Resolve() = %+v, want first route in table order", d)
	}
}

func TestFallback(t *testing.T) {
	r := NewRouter(Table{{Prefix: "[MPC]", Target: repo("org", "mpc")}},
		[]tracker.RepoRef{repo("org", "a"), repo("org", "b")})

	d := r.Resolve("Plain title")
	if d.Reason != ReasonFallback {
		t.Fatalf("Reason = %s, want fallback", d.Reason)
	}
	if len(d.Targets) != 2 || d.Targets[0] != repo("org", "a") || d.Targets[1] != repo("org", "b") {
		t.Errorf("Targets = %v, want [org/a org/b]", d.Targets)
	}

	// Route still wins over fallback.
	if d := r.Resolve("[MPC] x"); d.Reason != ReasonRoute {
		t.Errorf("Reason = %s, want route", d.Reason)
	}
}

func TestRepositories(t *testing.T) {
	r := NewRouter(Table{
		{Prefix: "b", Target: repo("org", "zeta")},
		{Prefix: "a", Target: repo("org", "alpha")},
	}, []tracker.RepoRef{repo("org", "zeta")})

	got := r.Repositories()
	if len(got) != 2 || got[0] != repo("org", "alpha") || got[1] != repo("org", "zeta") {
		t.Errorf("Repositories() = %v", got)
	}
}

func TestParseRoutesInvalid(t *testing.T) {
	if _, err := ParseRoutes([]string{"[MPC] org/repo"}); err == nil {
		t.Error("ParseRoutes() expected error for missing '='")
	}
	if _, err := FromSpecs([]RouteSpec{{Prefix: "", Repo: "org/repo"}}); err == nil {
		t.Error("FromSpecs() expected error for empty prefix")
	}
	if _, err := ParseTargets([]string{"not-a-repo"}); err == nil {
		t.Error("ParseTargets() expected error")
	}
}

func TestParseFileMappingKeepsOrder(t *testing.T) {
	data := []byte(`
routes:
  "[Gateway]": zama-ai/fhevm-internal
  "[MPC]": zama-ai/kms-internal
  "[Copro]": zama-ai/fhevm-internal
target_repos:
  - org/fallback
`)
	f, err := ParseFile(data)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	wantPrefixes := []string{"[Gateway]", "[MPC]", "[Copro]"}
	if len(f.Routes) != len(wantPrefixes) {
		t.Fatalf("Routes = %v", f.Routes)
	}
	for i, p := range wantPrefixes {
		if f.Routes[i].Prefix != p {
			t.Errorf("Routes[%d].Prefix = %q, want %q", i, f.Routes[i].Prefix, p)
		}
	}
	if len(f.TargetRepos) != 1 || f.TargetRepos[0] != "org/fallback" {
		t.Errorf("TargetRepos = %v", f.TargetRepos)
	}
}

func TestParseFileList(t *testing.T) {
	data := []byte(`
routes:
  - prefix: "[MPC]"
    repo: org/mpc
  - prefix: "[Gateway]"
    repo: org/gw
`)
	f, err := ParseFile(data)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	table, err := FromSpecs(f.Routes)
	if err != nil {
		t.Fatalf("FromSpecs() error = %v", err)
	}
	if table.String() != "[MPC]=org/mpc, [Gateway]=org/gw" {
		t.Errorf("table = %s", table)
	}
}

func TestParseFileInvalid(t *testing.T) {
	if _, err := ParseFile([]byte("routes: 42")); err == nil {
		t.Error("ParseFile() expected error for scalar routes")
	}
	if _, err := ParseFile([]byte("routes:\n  \"[MPC]\":\n    - a\n")); err == nil {
		t.Error("ParseFile() expected error for non-scalar route target")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	if err := os.WriteFile(path, []byte("routes:\n  \"[MPC]\": org/mpc\n"), 0600); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(f.Routes) != 1 || f.Routes[0].Repo != "org/mpc" {
		t.Errorf("Routes = %v", f.Routes)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() expected error for missing file")
	}
}
