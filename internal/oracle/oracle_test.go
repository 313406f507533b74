package oracle

import "testing"

func TestValidateMoveDoesNotMutatePosition(t *testing.T) {
	o := New()
	before := o.FEN()

	san, err := o.ValidateMove("e2e4")
	if err != nil {
		t.Fatalf("e2e4 should be legal in the starting position: %v", err)
	}
	if san != "e4" {
		t.Errorf("expected SAN e4, got %q", san)
	}
	if o.FEN() != before {
		t.Fatalf("ValidateMove must not mutate the live position")
	}
}

func TestValidateMoveRejectsIllegal(t *testing.T) {
	o := New()
	if _, err := o.ValidateMove("e2e5"); err == nil {
		t.Fatal("expected e2e5 to be rejected as illegal from the starting position")
	}
}

func TestApplyMoveMutatesPosition(t *testing.T) {
	o := New()
	before := o.FEN()

	if _, err := o.ApplyMove("e2e4"); err != nil {
		t.Fatalf("unexpected error applying a legal move: %v", err)
	}
	if o.FEN() == before {
		t.Fatal("expected the live position to change after ApplyMove")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	o := New()
	clone := o.Clone()

	if _, err := clone.ApplyMove("e2e4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.FEN() == clone.FEN() {
		t.Fatal("mutating a clone must not affect the original")
	}
}

func TestResultFoolsMate(t *testing.T) {
	o := New()
	moves := []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	for _, m := range moves {
		if _, err := o.ApplyMove(m); err != nil {
			t.Fatalf("unexpected error applying %q: %v", m, err)
		}
	}

	r := o.Result()
	if !r.Over || !r.Checkmate {
		t.Fatalf("expected checkmate after fool's mate, got %+v", r)
	}
	if r.WinnerIsWhite == nil || *r.WinnerIsWhite {
		t.Fatalf("expected black to win fool's mate, got %+v", r.WinnerIsWhite)
	}
}

func TestResultInProgress(t *testing.T) {
	o := New()
	r := o.Result()
	if r.Over {
		t.Fatal("a fresh game must not be reported as over")
	}
}

func TestPGNStripsHeaders(t *testing.T) {
	o := New()
	if _, err := o.ApplyMove("e2e4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pgn := o.PGN()
	for _, line := range []string{pgn} {
		if len(line) > 0 && line[0] == '[' {
			t.Fatalf("expected bracketed tag-pair headers stripped, got %q", pgn)
		}
	}
}
