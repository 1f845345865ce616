package segment

import (
	"testing"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

type stubCapability struct{ name string }

func (s stubCapability) Name() string              { return s.name }
func (s stubCapability) LinesPerRecord() int        { return 1 }
func (s stubCapability) RecordBoundary([]byte) bool { return false }
func (s stubCapability) SegmentRecord(*RecordCtx, [][]byte) error {
	return nil
}
func (s stubCapability) ReconstructRecord(*RecordCtx) ([][]byte, bool, error) {
	return nil, false, nil
}

func TestRegisterLookupNames(t *testing.T) {
	Register(stubCapability{name: "stub-registry-test"})

	got, err := Lookup("stub-registry-test")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Name() != "stub-registry-test" {
		t.Fatalf("Lookup returned %q, want %q", got.Name(), "stub-registry-test")
	}

	found := false
	for _, n := range Names() {
		if n == "stub-registry-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("Names() did not include the newly registered capability")
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("no-such-data-type"); err == nil {
		t.Fatal("Lookup: want error for unregistered name")
	}
}

func TestContextsGetIsIdempotent(t *testing.T) {
	cs := NewContexts()
	a := cs.Get("CHROM", fingerprint.Primary, context.Flags{NoSingletons: true})
	b := cs.Get("CHROM", fingerprint.Primary, context.Flags{})
	if a != b {
		t.Fatal("Contexts.Get returned different instances for the same name/category")
	}
	if !a.Flags.NoSingletons {
		t.Fatal("Contexts.Get: flags from the second call overwrote the first creation's flags")
	}
}

func TestContextsAllAndLocalSizeHint(t *testing.T) {
	cs := NewContexts()
	fp := fingerprint.New("POS", fingerprint.Primary)
	if got := cs.LocalSizeHint(fp); got != 64 {
		t.Fatalf("LocalSizeHint() bootstrap = %d, want 64", got)
	}
	cs.RecordGrowth(fp, 100)
	if got := cs.LocalSizeHint(fp); got != 158 {
		t.Fatalf("LocalSizeHint() after growth = %d, want 158", got)
	}

	cs.Get("POS", fingerprint.Primary, context.Flags{})
	cs.Get("CHROM", fingerprint.Primary, context.Flags{})
	if len(cs.All()) != 2 {
		t.Fatalf("All() returned %d contexts, want 2", len(cs.All()))
	}
}
