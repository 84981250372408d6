package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		JSON(map[string]int{"count": 2}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != `{"count":2}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerChanged("expenses", "g1").
		TriggerFormReset().
		TriggerSuccessNotification("Expense saved").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}

	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trigger), &events); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"expenses:changed", "form:reset", "show-notification"} {
		if _, ok := events[name]; !ok {
			t.Errorf("HX-Trigger missing %q: %s", name, trigger)
		}
	}
	if !strings.Contains(string(events["expenses:changed"]), `"group_id":"g1"`) {
		t.Errorf("changed event = %s", events["expenses:changed"])
	}
	if !strings.Contains(string(events["show-notification"]), `"type":"success"`) {
		t.Errorf("notification = %s", events["show-notification"])
	}
}

func TestHTMXResponseBuilder_NoTriggers(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Header("X-Custom", "value").Write(w)

	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should be absent without triggers")
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Error("custom header not set")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *HTMXResponseBuilder
		code    int
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("bad"), http.StatusUnprocessableEntity},
		{"unauthorized", UnauthorizedError("bad"), http.StatusUnauthorized},
		{"forbidden", ForbiddenError("bad"), http.StatusForbidden},
		{"not found", NotFoundError("bad"), http.StatusNotFound},
		{"internal", InternalServerError("bad"), http.StatusInternalServerError},
		{"unavailable", ServiceUnavailableError("bad"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.code {
				t.Errorf("Status = %d, want %d", w.Code, tt.code)
			}
			if w.Body.String() != `{"error":"bad"}` {
				t.Errorf("Body = %q", w.Body.String())
			}
			if !strings.Contains(w.Header().Get("HX-Trigger"), `"type":"error"`) {
				t.Errorf("missing error notification: %s", w.Header().Get("HX-Trigger"))
			}
		})
	}
}
