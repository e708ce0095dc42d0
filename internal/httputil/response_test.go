package httputil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 200, map[string]int{"n": 7})

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body["n"] != 7 {
		t.Errorf("body = %v", body)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(rec *httptest.ResponseRecorder)
		code  int
		msg   string
	}{
		{"not found", func(r *httptest.ResponseRecorder) { NotFound(r, "gone") }, 404, "gone"},
		{"bad request", func(r *httptest.ResponseRecorder) { BadRequest(r, "nope") }, 400, "nope"},
		{"unavailable", func(r *httptest.ResponseRecorder) { ServiceUnavailable(r, "later") }, 503, "later"},
		{"internal", func(r *httptest.ResponseRecorder) { InternalServerError(r, "boom") }, 500, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["detail"] != tt.msg {
				t.Errorf("detail = %q, want %q", body["detail"], tt.msg)
			}
		})
	}
}
