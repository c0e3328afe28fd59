package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/remote"
)

func newTestRepository(t *testing.T, status int, body string) (*Repository, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != PacksPath || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(remote.HeaderAdminKey) == "" {
			t.Error("expected admin key header")
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewRepository(remote.New(srv.URL)), &calls
}

func TestDecodeBareArray(t *testing.T) {
	packs, err := Decode([]byte(`[{"display_name":"A","form_key":"k1","form_version":"v1","active":true}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(packs) != 1 || packs[0].FormKey != "k1" || !packs[0].Active {
		t.Errorf("unexpected packs %+v", packs)
	}
}

func TestDecodeWrappedPacksAndData(t *testing.T) {
	for _, body := range []string{
		`{"packs":[{"form_key":"k1","form_version":"v1"}]}`,
		`{"data":[{"form_key":"k1","form_version":"v1"}]}`,
	} {
		packs, err := Decode([]byte(body))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", body, err)
		}
		if len(packs) != 1 || packs[0].FormVersion != "v1" {
			t.Errorf("%s: unexpected packs %+v", body, packs)
		}
	}
}

func TestDecodeRejectsOtherShapes(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`"packs"`,
		`{"items":[]}`,
		`{"packs":{"a":1}}`,
		`[1,2]`,
		`[{"form_key":1}]`,
	} {
		_, err := Decode([]byte(body))
		if model.KindOf(err) != model.KindFormat {
			t.Errorf("%q: expected format error, got %v", body, err)
		}
	}
}

func TestDecodeOffTypeActiveIsInactive(t *testing.T) {
	packs, err := Decode([]byte(`[
		{"form_key":"k1","form_version":"v1","active":"no"},
		{"form_key":"k2","form_version":"v1","active":"yes"},
		{"form_key":"k3","form_version":"v1","active":1},
		{"form_key":"k4","form_version":"v1","active":null,"status":"active"},
		{"form_key":"k5","form_version":"v1","active":true}
	]`))
	if err != nil {
		t.Fatalf("expected off-type active to be tolerated, got %v", err)
	}
	active := FilterActive(packs)
	if len(active) != 2 || active[0].FormKey != "k4" || active[1].FormKey != "k5" {
		t.Errorf("expected only k4 (status) and k5 (true) active, got %+v", active)
	}
}

func TestDecodeFormatErrorCarriesPayload(t *testing.T) {
	_, err := Decode([]byte(`<html>oops</html>`))
	if err == nil || !strings.Contains(err.Error(), "<html>oops</html>") {
		t.Fatalf("expected raw payload in error, got %v", err)
	}
}

func TestFetchActiveFiltersInactive(t *testing.T) {
	repo, _ := newTestRepository(t, http.StatusOK, `[
		{"display_name":"A","form_key":"k1","form_version":"v1","active":true},
		{"display_name":"B","form_key":"k2","form_version":"v1","active":false},
		{"display_name":"C","form_key":"k3","form_version":"v1","status":"ACTIVE"},
		{"display_name":"D","form_key":"k4","form_version":"v1","status":"retired"},
		{"display_name":"E","form_key":"k5","form_version":"v1"}
	]`)

	packs, err := repo.FetchActive(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("expected 2 active packs, got %d: %+v", len(packs), packs)
	}
	if packs[0].DisplayName != "A" || packs[1].DisplayName != "C" {
		t.Errorf("unexpected active packs %+v", packs)
	}
	if len(repo.Last()) != 2 {
		t.Errorf("expected cache to hold last fetch")
	}
}

func TestFetchActiveEmptySecretMakesNoCall(t *testing.T) {
	repo, calls := newTestRepository(t, http.StatusOK, `[]`)

	_, err := repo.FetchActive(context.Background(), "  ")
	if model.KindOf(err) != model.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no network call, got %d", calls.Load())
	}
}

func TestFetchActiveServerError(t *testing.T) {
	repo, _ := newTestRepository(t, http.StatusForbidden, "forbidden")

	_, err := repo.FetchActive(context.Background(), "s1")
	if model.KindOf(err) != model.KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("expected body text in error, got %q", err.Error())
	}
}

func TestFetchActiveFailureKeepsCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.Write([]byte(`nope`))
			return
		}
		w.Write([]byte(`[{"form_key":"k1","form_version":"v1","active":true}]`))
	}))
	defer srv.Close()

	repo := NewRepository(remote.New(srv.URL))
	if _, err := repo.FetchActive(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	if _, err := repo.FetchActive(context.Background(), "s1"); model.KindOf(err) != model.KindFormat {
		t.Fatalf("expected format error, got %v", err)
	}
	if len(repo.Last()) != 1 {
		t.Errorf("expected previous cache to survive a failed fetch")
	}
}
