// Package oracle wraps github.com/notnil/chess behind the narrow surface
// the session coordinator actually needs: move validation/application,
// terminal-position detection, and SAN/FEN/PGN export. Per spec.md §1 the
// chess rules engine is treated as an oracle, not redesigned — this package
// is a thin adapter, not a rules implementation.
package oracle

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Oracle holds one live chess.Game and the narrow operations the Turn
// Controller needs against it.
type Oracle struct {
	game *chess.Game
}

// New returns an Oracle at the standard starting position.
func New() *Oracle {
	return &Oracle{game: chess.NewGame()}
}

// FromFEN rebuilds an Oracle at an arbitrary position, used by Clone.
func FromFEN(fen string) (*Oracle, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid FEN: %w", err)
	}
	return &Oracle{game: chess.NewGame(opt)}, nil
}

// Clone returns an independent Oracle at the same position, used to
// replay a candidate move without mutating the live position (spec.md
// §4.1 play_move step 4).
func (o *Oracle) Clone() *Oracle {
	cloned, err := FromFEN(o.FEN())
	if err != nil {
		// The live position is always a FEN we ourselves produced, so this
		// can't fail in practice; fall back to a fresh oracle rather than
		// returning a nil pointer to callers that don't expect one.
		return New()
	}
	return cloned
}

// FEN returns the Forsyth-Edwards Notation of the current position.
func (o *Oracle) FEN() string {
	return o.game.FEN()
}

// ValidateMove decodes lan (long algebraic notation, e.g. "e2e4") and
// checks it is legal in the current position without mutating it. It
// returns the move's SAN on success.
func (o *Oracle) ValidateMove(lan string) (san string, err error) {
	pos := o.game.Position()
	move, err := chess.UCINotation{}.Decode(pos, lan)
	if err != nil {
		return "", fmt.Errorf("illegal move %q: %w", lan, err)
	}
	san = chess.AlgebraicNotation{}.Encode(pos, move)

	// Confirm legality by applying to a throwaway clone; UCINotation.Decode
	// already validates against the position's legal moves, but replaying
	// on a clone guarantees we never mutate o.game here.
	probe := o.Clone()
	if err := probe.game.Move(move); err != nil {
		return "", fmt.Errorf("illegal move %q: %w", lan, err)
	}
	return san, nil
}

// ApplyMove decodes and applies lan to the live position, returning its
// SAN. Used once, at turn commit, for the engine's chosen move.
func (o *Oracle) ApplyMove(lan string) (san string, err error) {
	pos := o.game.Position()
	move, err := chess.UCINotation{}.Decode(pos, lan)
	if err != nil {
		return "", fmt.Errorf("illegal move %q: %w", lan, err)
	}
	san = chess.AlgebraicNotation{}.Encode(pos, move)
	if err := o.game.Move(move); err != nil {
		return "", fmt.Errorf("illegal move %q: %w", lan, err)
	}
	return san, nil
}

// Resign marks whiteResigns's side as having resigned, closing out the
// PGN with the correct result tag.
func (o *Oracle) Resign(whiteResigns bool) {
	color := chess.Black
	if whiteResigns {
		color = chess.White
	}
	o.game.Resign(color)
}

// Result summarizes the oracle's terminal-position judgement, priority-
// ordered the way spec.md §4.1 requires callers to test it: checkmate,
// stalemate, threefold, insufficient material, other draw-by-rule.
type Result struct {
	Over          bool
	Checkmate     bool
	Stalemate     bool
	Threefold     bool
	Insufficient  bool
	OtherDrawRule bool
	// WinnerIsWhite is nil for a draw or a game still in progress.
	WinnerIsWhite *bool
}

// Result inspects the current position's outcome.
func (o *Oracle) Result() Result {
	outcome := o.game.Outcome()
	if outcome == chess.NoOutcome {
		return Result{}
	}

	r := Result{Over: true}
	switch o.game.Method() {
	case chess.Checkmate:
		r.Checkmate = true
	case chess.Stalemate:
		r.Stalemate = true
	case chess.ThreefoldRepetition:
		r.Threefold = true
	case chess.InsufficientMaterial:
		r.Insufficient = true
	case chess.FiftyMoveRule, chess.FivefoldRepetition, chess.SeventyFiveMoveRule:
		r.OtherDrawRule = true
	}

	switch outcome {
	case chess.WhiteWon:
		t := true
		r.WinnerIsWhite = &t
	case chess.BlackWon:
		f := false
		r.WinnerIsWhite = &f
	}
	return r
}

// PGN renders move history with bracketed tag-pair headers stripped, per
// spec.md §9's open-question resolution.
func (o *Oracle) PGN() string {
	raw := o.game.String()
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
