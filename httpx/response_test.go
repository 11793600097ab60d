package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	JSONError(w, http.StatusBadRequest, "Requis", map[string]string{"email": "required"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["error"] != "Requis" || body["details"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]any{"credits": 3})
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusOK || body["success"] != true || body["credits"] != float64(3) {
		t.Fatalf("unexpected %d %v", w.Code, body)
	}
}

func TestDecode(t *testing.T) {
	var dst struct{ A int }
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"A":2}`))
	if err := Decode(r, &dst); err != nil || dst.A != 2 {
		t.Fatalf("decode: %v %v", err, dst)
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := Decode(r, &dst); err != nil {
		t.Fatalf("empty body: %v", err)
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	if err := Decode(r, &dst); err == nil {
		t.Fatalf("expected error")
	}
}
