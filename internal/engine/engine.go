// Package engine implements the narrow "pick best among candidates for a
// FEN" port spec.md §4.5 describes. The chess engine subprocess is treated
// as a collaborator, not redesigned: this package only knows how to drive
// it over UCI and surface a fatal fault if it stops answering.
package engine

import (
	"context"
	"fmt"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"

	"github.com/teamchess/server/log"
)

// Adapter is the port the Turn Controller depends on. Exactly one
// subprocess is owned per Adapter instance; Quit terminates it.
type Adapter interface {
	// Choose returns the winning candidate LAN for fen. The returned LAN
	// is always one of candidates. ctx governs the engine-call watchdog
	// (spec.md §9); callers should treat ctx.Err() specially rather than
	// as an engine fault.
	Choose(ctx context.Context, fen string, candidates []string) (string, error)
	Quit()
}

// Dedup returns the distinct candidates in first-seen order.
func Dedup(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// StockfishAdapter drives a UCI-speaking subprocess (Stockfish, or any
// compatible engine) at a fixed search depth through
// github.com/notnil/chess/uci, the same client the Chess Oracle's move
// validation library ships for this exact purpose.
type StockfishAdapter struct {
	depth int
	log   log.Logger

	eng *uci.Engine
}

// NewStockfishAdapter launches binary and performs the UCI handshake
// (uci/isready/ucinewgame), owning the subprocess the way spec.md §9's
// "Engine subprocess isolation" design note recommends.
func NewStockfishAdapter(binary string, depth int, logger log.Logger) (*StockfishAdapter, error) {
	eng, err := uci.New(binary)
	if err != nil {
		return nil, fmt.Errorf("starting engine subprocess: %w", err)
	}
	if err := eng.Run(uci.CmdUCI, uci.CmdIsReady, uci.CmdUCINewGame); err != nil {
		eng.Close()
		return nil, fmt.Errorf("engine handshake: %w", err)
	}

	a := &StockfishAdapter{
		depth: depth,
		log:   logger.Named("engine"),
		eng:   eng,
	}
	a.log.Infow("engine ready", "binary", binary, "depth", depth)
	return a, nil
}

// Choose implements Adapter. When the deduplicated candidate set has size
// one, it is returned without engine interaction (spec.md §4.5).
func (a *StockfishAdapter) Choose(ctx context.Context, fen string, candidates []string) (string, error) {
	unique := Dedup(candidates)
	if len(unique) == 0 {
		return "", fmt.Errorf("no candidates to choose from")
	}
	if len(unique) == 1 {
		return unique[0], nil
	}

	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("invalid FEN: %w", err)
	}
	game := chess.NewGame(fenOpt)
	pos := game.Position()

	searchMoves, err := matchMoves(pos, unique)
	if err != nil {
		return "", err
	}

	type result struct {
		lan string
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		cmdPos := uci.CmdPosition{Position: pos}
		cmdGo := uci.CmdGo{Depth: a.depth, SearchMoves: searchMoves}
		if err := a.eng.Run(cmdPos, cmdGo); err != nil {
			resultCh <- result{err: fmt.Errorf("engine fault: %w", err)}
			return
		}
		best := a.eng.SearchResults().BestMove
		if best == nil {
			resultCh <- result{err: fmt.Errorf("engine search produced no move")}
			return
		}
		resultCh <- result{lan: best.String()}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		if !contains(unique, res.lan) {
			return "", fmt.Errorf("engine returned a move %q outside the candidate set", res.lan)
		}
		return res.lan, nil
	case <-ctx.Done():
		return "", fmt.Errorf("engine call watchdog expired: %w", ctx.Err())
	}
}

// matchMoves resolves each candidate LAN string to the *chess.Move the
// notnil/chess library produced for pos, so the engine can be restricted to
// exactly the turn's proposals via UCI's "searchmoves".
func matchMoves(pos *chess.Position, lans []string) ([]*chess.Move, error) {
	valid := pos.ValidMoves()
	out := make([]*chess.Move, 0, len(lans))
	for _, lan := range lans {
		found := false
		for _, m := range valid {
			if m.String() == lan {
				out = append(out, m)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("candidate %q is not a legal move in the current position", lan)
		}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Quit terminates the subprocess.
func (a *StockfishAdapter) Quit() {
	a.eng.Close()
}
