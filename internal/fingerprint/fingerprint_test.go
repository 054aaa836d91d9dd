package fingerprint

import "testing"

func TestCompute_OrderPunctuationCaseInsensitive(t *testing.T) {
	a := Compute("Python developer")
	b := Compute("python, developer!")
	c := Compute("developer python")

	if a != b || b != c {
		t.Fatalf("expected equal fingerprints, got %q, %q, %q", a, b, c)
	}
	if len(a) != length {
		t.Fatalf("expected fingerprint of length %d, got %d", length, len(a))
	}
}

func TestCompute_S6Scenario(t *testing.T) {
	a := Compute("Senior Python Developer")
	b := Compute("python developer senior!!")
	if a != b {
		t.Fatalf("expected S6 scenario fingerprints to match, got %q vs %q", a, b)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	q := "Backend Engineer, Remote!"
	if Compute(q) != Compute(q) {
		t.Fatal("expected fingerprint to be deterministic across calls")
	}
}

func TestCompute_DistinctQueriesDiffer(t *testing.T) {
	if Compute("backend engineer") == Compute("frontend engineer") {
		t.Fatal("expected distinct queries to produce distinct fingerprints")
	}
}
