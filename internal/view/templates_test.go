package view

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-signup/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderPages(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	cases := map[string]struct {
		data TemplateData
		want string
	}{
		"pages/home.html":     {TemplateData{Title: "Home", User: "alice@example.com", Data: struct{ Email string }{"alice@example.com"}}, "alice@example.com"},
		"pages/login.html":    {TemplateData{Title: "Sign in", CSRFToken: "tok"}, `name="csrf_token" value="tok"`},
		"pages/register.html": {TemplateData{Title: "Register", CSRFToken: "tok"}, `action="/register"`},
		"pages/mail.html": {TemplateData{Title: "Check your email", Data: struct {
			Email     string
			ExpiresAt time.Time
		}{"bob@example.com", time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)}}, "02 Jan 2024 03:04 UTC"},
		"pages/invalid.html": {TemplateData{Title: "Invalid", Data: struct{ Message, Retry string }{"nope", "/login"}}, "nope"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, engine.Render(rec, name, tc.data))
			assert.Contains(t, rec.Body.String(), tc.want)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRenderFlash(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	data := TemplateData{Title: "Home", Flash: &shared.FlashMessage{Kind: "success", Message: "Welcome back"}, Data: struct{ Email string }{}}
	require.NoError(t, engine.Render(rec, "pages/home.html", data))
	assert.Contains(t, rec.Body.String(), "Welcome back")
}

func TestRenderNilEngine(t *testing.T) {
	var e *Engine
	assert.Error(t, e.Render(httptest.NewRecorder(), "pages/home.html", TemplateData{}))
}
