package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ical2mail/internal/agenda"
	"ical2mail/internal/config"
	"ical2mail/internal/digest"
	"ical2mail/internal/model"
	"ical2mail/internal/render"
)

type fakeCollector struct {
	calls int
	err   error
}

func (f *fakeCollector) Collect(context.Context) (digest.Result, error) {
	f.calls++
	if f.err != nil {
		return digest.Result{}, f.err
	}
	frame, err := agenda.NewFrame(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), time.UTC, 0, 7)
	if err != nil {
		return digest.Result{}, err
	}
	formats := agenda.DefaultFormats()
	rec := model.Record{
		Fields: map[string]string{"summary": "Standup", "uid": "S1"},
		Start:  formats.Format(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		End:    formats.Format(time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)),
	}
	return digest.Result{
		Frame:   frame,
		Records: []model.Record{rec},
		Data:    render.NewData(frame, formats, []string{"work"}, []model.Record{rec}),
	}, nil
}

func (f *fakeCollector) Render(context.Context) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return "09:00 Standup\n", "Events 01.03.2024 - 07.03.2024", nil
}

func newTestServer(cfg *config.Config, c Collector) http.Handler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return NewServer(cfg, c).Handler()
}

func get(h http.Handler, path string, auth ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newTestServer(nil, &fakeCollector{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEventsAreCached(t *testing.T) {
	c := &fakeCollector{}
	h := newTestServer(nil, c)

	rec := get(h, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []struct {
			Fields map[string]string `json:"fields"`
			Start  struct {
				DateTime string `json:"datetime"`
			} `json:"start"`
		} `json:"events"`
		DisplayTimeZone string   `json:"display_timezone"`
		Calendars       []string `json:"calendars"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Standup", resp.Events[0].Fields["summary"])
	assert.Equal(t, "01.03.2024 09:00", resp.Events[0].Start.DateTime)
	assert.Equal(t, "UTC", resp.DisplayTimeZone)
	assert.Equal(t, []string{"work"}, resp.Calendars)

	get(h, "/api/events")
	assert.Equal(t, 1, c.calls)
}

func TestEventsFailureIsBadGateway(t *testing.T) {
	h := newTestServer(nil, &fakeCollector{err: errors.New("feed down")})

	rec := get(h, "/api/events")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed down")

	rec = get(h, "/digest")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDigest(t *testing.T) {
	rec := get(newTestServer(nil, &fakeCollector{}), "/digest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "09:00 Standup\n", rec.Body.String())
	assert.Equal(t, "Events 01.03.2024 - 07.03.2024", rec.Header().Get("X-Digest-Subject"))
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	h := newTestServer(cfg, &fakeCollector{})

	assert.Equal(t, http.StatusOK, get(h, "/health").Code, "health stays open")

	rec := get(h, "/digest")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	assert.Equal(t, http.StatusUnauthorized, get(h, "/digest", "admin", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(h, "/digest", "admin", "pw").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(nil, &fakeCollector{})
	req := httptest.NewRequest(http.MethodPost, "/digest", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEqualSecret(t *testing.T) {
	assert.True(t, equalSecret("pw", "pw"))
	assert.True(t, equalSecret("", ""))
	assert.False(t, equalSecret("pw", "pW"))
	assert.False(t, equalSecret("pw", "pw-longer"))
	assert.False(t, equalSecret("", "pw"))

	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	h := newTestServer(cfg, &fakeCollector{})
	assert.Equal(t, http.StatusUnauthorized, get(h, "/digest", "admin", "p").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/digest", "administrator", "pw").Code)
}
