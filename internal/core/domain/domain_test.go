package domain

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestExtensions_TypedRoundTrip(t *testing.T) {
	type user struct{ Name string }

	req := NewRequest(http.MethodGet, "/")
	req.Set("user", user{Name: "ada"})

	got, ok := Extension[user](req, "user")
	if !ok {
		t.Fatal("expected the extension to be present")
	}
	if got.Name != "ada" {
		t.Errorf("unexpected value %+v", got)
	}

	if _, ok := Extension[string](req, "user"); ok {
		t.Error("a type mismatch must report absence")
	}
	if _, ok := Extension[user](req, "missing"); ok {
		t.Error("an unknown key must report absence")
	}
}

func TestReadJSON(t *testing.T) {
	req := NewRequest(http.MethodPost, "/echo")
	req.Body = io.NopCloser(strings.NewReader(`{"greeting":"hello"}`))

	var payload map[string]string
	if err := req.ReadJSON(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["greeting"] != "hello" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestReadJSON_MalformedBodyIsReply(t *testing.T) {
	req := NewRequest(http.MethodPost, "/echo")
	req.Body = io.NopCloser(strings.NewReader(`{not json`))

	var payload map[string]string
	err := req.ReadJSON(&payload)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}

	reply, ok := AsReply(err)
	if !ok {
		t.Fatalf("expected a *Reply, got %T", err)
	}
	if reply.Response.Status != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", reply.Response.Status)
	}
}

func TestReadJSON_MissingBodyIsReply(t *testing.T) {
	req := NewRequest(http.MethodPost, "/echo")

	var payload map[string]string
	err := req.ReadJSON(&payload)
	reply, ok := AsReply(err)
	if !ok {
		t.Fatalf("expected a *Reply, got %T", err)
	}
	if reply.Response.Status != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", reply.Response.Status)
	}
}

func TestAsReply_WrappedError(t *testing.T) {
	inner := Fail(Text(http.StatusConflict, "conflict"))
	wrapped := fmt.Errorf("saving item: %w", inner)

	reply, ok := AsReply(wrapped)
	if !ok {
		t.Fatal("AsReply must see through wrapping")
	}
	if reply.Response.Status != http.StatusConflict {
		t.Errorf("expected 409, got %d", reply.Response.Status)
	}

	if _, ok := AsReply(errors.New("plain")); ok {
		t.Error("a plain error is not a reply")
	}
}

func TestJSONResponse(t *testing.T) {
	res := JSON(http.StatusCreated, map[string]int{"id": 7})
	if res.Status != http.StatusCreated {
		t.Errorf("expected 201, got %d", res.Status)
	}
	if res.Header.Get("Content-Type") != "application/json" {
		t.Error("expected a JSON content type")
	}
	if string(res.Body) != `{"id":7}` {
		t.Errorf("unexpected body %q", res.Body)
	}
}

func TestJSONResponse_UnmarshalableValue(t *testing.T) {
	res := JSON(http.StatusOK, make(chan int))
	if res.Status != http.StatusInternalServerError {
		t.Errorf("unmarshalable payloads must degrade to the failure response, got %d", res.Status)
	}
}

func TestInternalError_FixedShape(t *testing.T) {
	res := InternalError()
	if res.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", res.Status)
	}
	if string(res.Body) != `{"error":"internal_error"}` {
		t.Errorf("the failure body must be constant, got %q", res.Body)
	}
}
