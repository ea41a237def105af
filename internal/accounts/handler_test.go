package accounts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newBatchRouter(repo *memRepo) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, newTestService(repo, nil)).MountRoutes(r)
	return r
}

func TestBatchHandlerNonStrict(t *testing.T) {
	repo := newMemRepo()
	a := repo.addAccount("a", "a@example.com", true)
	b := repo.addAccount("b", "b@example.com", false)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batch?ids=2,77,1", nil)
	newBatchRouter(repo).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body batchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(body.Accounts))
	}
	if body.Accounts[0].ID != b.ID || body.Accounts[1].ID != a.ID {
		t.Fatalf("unexpected order: %+v", body.Accounts)
	}
}

func TestBatchHandlerStrictMissing(t *testing.T) {
	repo := newMemRepo()
	repo.addAccount("a", "", true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batch?ids=1,5&strict=true", nil)
	newBatchRouter(repo).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestBatchHandlerRejectsBadIDs(t *testing.T) {
	for _, query := range []string{"", "ids=", "ids=1,x", "ids=-3"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/batch?"+query, nil)
		newBatchRouter(newMemRepo()).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, rr.Code)
		}
	}
}
