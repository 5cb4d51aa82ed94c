package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("unexpected info %+v", info)
	}
	if String() != Version {
		t.Errorf("String() = %q", String())
	}
}

func TestBanner(t *testing.T) {
	out := Banner(42, []string{"mailer", "indexer"})
	for _, want := range []string{"zba " + Version, "master pid: 42", "mailer, indexer"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(Banner(1, nil), "none") {
		t.Error("empty task list not reported")
	}
}
