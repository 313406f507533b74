package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/log"
)

type fakeProvider struct {
	snap StatusSnapshot
}

func (f fakeProvider) Status() StatusSnapshot { return f.snap }

func TestHealthz(t *testing.T) {
	r := NewRouter(log.DefaultLogger(), fakeProvider{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", rec.Body.String())
	}
}

func TestStatusReturnsSnapshot(t *testing.T) {
	provider := fakeProvider{snap: StatusSnapshot{
		GameStatus: game.AwaitingProposals,
		MoveNumber: 3,
		SideToMove: game.Black,
		WhiteTime:  580,
		BlackTime:  590,
	}}
	r := NewRouter(log.DefaultLogger(), provider)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got StatusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got != provider.snap {
		t.Fatalf("expected snapshot %+v, got %+v", provider.snap, got)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	r := NewRouter(log.DefaultLogger(), fakeProvider{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
