package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "problem detail", body: `{"title":"Not Found","detail":"chat x: not found"}`, want: "chat x: not found"},
		{name: "error field", body: `{"error":"boom","code":500}`, want: "boom"},
		{name: "title only", body: `{"title":"Bad Gateway"}`, want: "Bad Gateway"},
		{name: "plain text", body: "  upstream down \n", want: "upstream down"},
		{name: "empty", body: "", want: "empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProblemMessage([]byte(tt.body)))
		})
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "chat missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Not Found", problem.Title)
	assert.Equal(t, "chat missing", problem.Detail)
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "chat missing", ProblemMessage(rec.Body.Bytes()))
}

func TestParseJSON(t *testing.T) {
	var dest struct {
		Model string `json:"model"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"model":"m","extra":1}`))
	require.NoError(t, ParseJSON(httptest.NewRecorder(), req, &dest))
	assert.Equal(t, "m", dest.Model)

	tests := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `{"model":`},
		{name: "empty", body: ""},
		{name: "trailing value", body: `{"model":"a"} {"model":"b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := ParseJSON(httptest.NewRecorder(), req, &dest)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid JSON")
		})
	}
}

func TestParseJSON_TooLarge(t *testing.T) {
	var dest struct {
		Message string `json:"message"`
	}
	body := `{"message":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	assert.ErrorIs(t, ParseJSON(httptest.NewRecorder(), req, &dest), ErrBodyTooLarge)
}

func TestDecodeBody(t *testing.T) {
	var dest map[string]interface{}

	rec := httptest.NewRecorder()
	ok := DecodeBody(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)), &dest)
	assert.True(t, ok)
	assert.Equal(t, 0, rec.Body.Len())

	rec = httptest.NewRecorder()
	ok = DecodeBody(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`nope`)), &dest)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	big := `{"a":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	ok = DecodeBody(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)), &dest)
	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, ErrBodyTooLarge.Error(), ProblemMessage(rec.Body.Bytes()))
}

func TestRespondErrorWithExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithExtras(rec, http.StatusConflict, "turn in flight", map[string]interface{}{
		"chat_id": "chat-1",
		"status":  999, // standard fields win
	})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "chat-1", body["chat_id"])
	assert.Equal(t, float64(http.StatusConflict), body["status"])
	assert.Equal(t, "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.8", body["type"])
}

func TestNewProblem_UnknownStatus(t *testing.T) {
	p := NewProblem(http.StatusTeapot, "")
	assert.Equal(t, "about:blank", p.Type)
	assert.Equal(t, "I'm a teapot", p.Title)
}

func TestOptionalString(t *testing.T) {
	var body struct {
		Model OptionalString `json:"model"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{}`), &body))
	assert.False(t, body.Model.Present)

	require.NoError(t, json.Unmarshal([]byte(`{"model":null}`), &body))
	assert.True(t, body.Model.Present)
	assert.Nil(t, body.Model.Value)

	require.NoError(t, json.Unmarshal([]byte(`{"model":"fast"}`), &body))
	model, ok := body.Model.String()
	require.True(t, ok)
	assert.Equal(t, "fast", model)
}

func TestOptionalString_Marshal(t *testing.T) {
	type patch struct {
		Model OptionalString `json:"model,omitzero"`
	}

	tests := []struct {
		name  string
		value OptionalString
		want  string
	}{
		{name: "absent", value: OptionalString{}, want: `{}`},
		{name: "null", value: NullString(), want: `{"model":null}`},
		{name: "value", value: SetString("m-fast"), want: `{"model":"m-fast"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(patch{Model: tt.value})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}

	_, ok := NullString().String()
	assert.False(t, ok)
}

func TestOwnerContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetOwnerID(req))
	assert.Equal(t, "owner-1", GetOwnerID(WithOwnerID(req, "owner-1")))
}
