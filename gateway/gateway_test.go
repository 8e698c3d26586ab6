package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/story-sync/auth"
	"github.com/stevemurr/story-sync/gateway"
	"github.com/stevemurr/story-sync/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, h http.Handler, token string) (*gateway.Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	tokens := auth.NewMemoryTokens()
	if token != "" {
		require.NoError(t, tokens.SetToken(token))
	}
	c := gateway.NewClient(ts.URL, tokens, gateway.Options{
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
	})
	return c, ts
}

func TestLoginTokenShapes(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{
			name: "data.loginResult.token",
			body: map[string]any{"data": map[string]any{"loginResult": map[string]any{"token": "t1"}}},
			want: "t1",
		},
		{
			name: "data.token",
			body: map[string]any{"data": map[string]any{"token": "t2"}},
			want: "t2",
		},
		{
			name: "data.accessToken",
			body: map[string]any{"data": map[string]any{"accessToken": "t3"}},
			want: "t3",
		},
		{
			name: "top-level loginResult",
			body: map[string]any{"error": false, "message": "success", "loginResult": map[string]any{"userId": "u", "token": "t4"}},
			want: "t4",
		},
		{
			name: "loginResult wins over token",
			body: map[string]any{"data": map[string]any{"token": "second", "loginResult": map[string]any{"token": "first"}}},
			want: "first",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/login", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				var creds map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
				assert.Equal(t, "a@b.c", creds["email"])
				writeJSON(w, http.StatusOK, tc.body)
			}), "")

			res := c.Login(context.Background(), "a@b.c", "secret")
			require.True(t, res.OK, res.Message)
			assert.NoError(t, res.Err)
			assert.Equal(t, tc.want, res.Data)
		})
	}
}

func TestLoginWithoutToken(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"user": "x"}})
	}), "")

	res := c.Login(context.Background(), "a@b.c", "secret")
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, gateway.ErrNoToken)
}

func TestLoginRejectedCredentials(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": true, "message": "Invalid password"})
	}), "")

	res := c.Login(context.Background(), "a@b.c", "wrong")
	assert.False(t, res.OK)
	assert.Equal(t, "Invalid password", res.Message)
	assert.ErrorIs(t, res.Err, gateway.ErrServerRejected)
	assert.NotErrorIs(t, res.Err, gateway.ErrNoToken)
}

func TestExtractToken(t *testing.T) {
	tok, err := gateway.ExtractToken(map[string]any{"token": "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", tok)

	_, err = gateway.ExtractToken(map[string]any{"data": map[string]any{"token": ""}})
	assert.ErrorIs(t, err, gateway.ErrNoToken)

	_, err = gateway.ExtractToken(map[string]any{"data": map[string]any{"loginResult": "not-an-object"}})
	assert.ErrorIs(t, err, gateway.ErrNoToken)
}

func TestRegister(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["email"] == "taken@b.c" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": true, "message": "Email is already taken"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"error": false, "message": "User created"})
	}), "")

	ok := c.Register(context.Background(), "Ana", "ana@b.c", "password1")
	assert.True(t, ok.OK)
	assert.Equal(t, "User created", ok.Message)

	taken := c.Register(context.Background(), "Ana", "taken@b.c", "password1")
	assert.False(t, taken.OK)
	assert.Equal(t, "Email is already taken", taken.Message)
	assert.ErrorIs(t, taken.Err, gateway.ErrServerRejected)

	invalid := c.Register(context.Background(), "", "", "")
	assert.ErrorIs(t, invalid.Err, gateway.ErrInvalidInput)
}

func TestListReports(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stories", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("size"))
		assert.Equal(t, "1", r.URL.Query().Get("location"))
		writeJSON(w, http.StatusOK, map[string]any{
			"error":   false,
			"message": "Stories fetched successfully",
			"listStory": []map[string]any{
				{"id": "a", "name": "Ana", "description": "one", "lat": -6.2, "lon": 106.8},
				{"id": "b", "name": "Budi", "description": "two", "lat": nil, "lon": nil},
			},
		})
	}), "tok")

	loc := true
	res := c.ListReports(context.Background(), gateway.ListOptions{Page: 2, Size: 10, Location: &loc})
	require.True(t, res.OK)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "a", res.Data[0].ID)
	assert.True(t, res.Data[0].HasLocation())
	assert.False(t, res.Data[1].HasLocation())
}

func TestListReportsOmitsUnsetParams(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		writeJSON(w, http.StatusOK, map[string]any{"error": false, "listStory": []any{}})
	}), "tok")

	res := c.ListReports(context.Background(), gateway.ListOptions{})
	assert.True(t, res.OK)
}

func TestListReportsCoercesMissingList(t *testing.T) {
	bodies := map[string]map[string]any{
		"missing":   {"error": false, "message": "ok"},
		"null":      {"error": false, "listStory": nil},
		"malformed": {"error": false, "listStory": "nope"},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, body)
			}), "tok")

			res := c.ListReports(context.Background(), gateway.ListOptions{})
			assert.True(t, res.OK)
			assert.NotNil(t, res.Data)
			assert.Empty(t, res.Data)
		})
	}
}

func TestListReportsErrorFlag(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"error": true, "message": "maintenance"})
	}), "tok")

	res := c.ListReports(context.Background(), gateway.ListOptions{})
	assert.False(t, res.OK)
	assert.Equal(t, "maintenance", res.Message)
	assert.ErrorIs(t, res.Err, gateway.ErrServerRejected)
	assert.NotNil(t, res.Data)
}

func TestListReportsUnauthorized(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": true, "message": "Missing authentication"})
	}), "")

	res := c.ListReports(context.Background(), gateway.ListOptions{})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, gateway.ErrUnauthenticated)
}

func TestListReportsNetworkFailure(t *testing.T) {
	c, ts := newClient(t, http.NotFoundHandler(), "tok")
	ts.Close()

	res := c.ListReports(context.Background(), gateway.ListOptions{})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, gateway.ErrNetwork)
	assert.NotEmpty(t, res.Message)
}

func TestListReportsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"error": false, "listStory": []map[string]any{{"id": "a", "description": "x"}}})
	}), "tok")

	res := c.ListReports(context.Background(), gateway.ListOptions{})
	require.True(t, res.OK, res.Message)
	assert.Len(t, res.Data, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListReportsGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), "tok")

	res := c.ListReports(context.Background(), gateway.ListOptions{})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, gateway.ErrServerRejected)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetReport(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stories/story-1" {
			writeJSON(w, http.StatusOK, map[string]any{"error": false, "story": map[string]any{"id": "story-1", "description": "hi"}})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": true, "message": "Story not found"})
	}), "tok")

	res := c.GetReport(context.Background(), "story-1")
	require.True(t, res.OK)
	assert.Equal(t, "hi", res.Data.Description)

	missing := c.GetReport(context.Background(), "nope")
	assert.False(t, missing.OK)
	assert.ErrorIs(t, missing.Err, gateway.ErrServerRejected)
}

func TestCreateReportRequiresToken(t *testing.T) {
	var calls atomic.Int32
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), "")

	res := c.CreateReport(context.Background(), report.Draft{Description: "d", Photo: strings.NewReader("img")})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, gateway.ErrUnauthenticated)
	assert.Zero(t, calls.Load())
}

func TestCreateReportMultipart(t *testing.T) {
	tests := []struct {
		name    string
		lat     *float64
		lon     *float64
		wantLat string
	}{
		{name: "with coordinates", lat: report.Float(-6.175), lon: report.Float(106.8272), wantLat: "-6.175"},
		{name: "without coordinates"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/stories", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				require.NoError(t, r.ParseMultipartForm(1<<20))

				assert.Equal(t, "a story", r.FormValue("description"))
				f, hdr, err := r.FormFile("photo")
				require.NoError(t, err)
				defer f.Close()
				content, _ := io.ReadAll(f)
				assert.Equal(t, "jpeg-bytes", string(content))
				assert.Equal(t, "pic.jpg", hdr.Filename)
				assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))

				_, hasLat := r.MultipartForm.Value["lat"]
				_, hasLon := r.MultipartForm.Value["lon"]
				if tc.lat == nil {
					assert.False(t, hasLat)
					assert.False(t, hasLon)
				} else {
					assert.Equal(t, tc.wantLat, r.FormValue("lat"))
					assert.Equal(t, "106.8272", r.FormValue("lon"))
				}
				writeJSON(w, http.StatusCreated, map[string]any{"error": false, "message": "Story created successfully"})
			}), "tok")

			res := c.CreateReport(context.Background(), report.Draft{
				Description: "a story",
				Photo:       strings.NewReader("jpeg-bytes"),
				PhotoName:   "pic.jpg",
				Lat:         tc.lat,
				Lon:         tc.lon,
			})
			require.True(t, res.OK, res.Message)
			assert.Equal(t, "Story created successfully", res.Message)
		})
	}
}

func TestCreateReportInvalidDraft(t *testing.T) {
	c, _ := newClient(t, http.NotFoundHandler(), "tok")
	res := c.CreateReport(context.Background(), report.Draft{Photo: strings.NewReader("x")})
	assert.ErrorIs(t, res.Err, gateway.ErrInvalidInput)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/subscribe", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "https://push.test/ep", body["endpoint"])
			assert.Equal(t, map[string]any{"p256dh": "pk", "auth": "ak"}, body["keys"])
			writeJSON(w, http.StatusOK, map[string]any{"error": false, "message": "Success to subscribe"})
		case http.MethodDelete:
			assert.Equal(t, map[string]any{"endpoint": "https://push.test/ep"}, body)
			writeJSON(w, http.StatusOK, map[string]any{"error": true, "message": "not subscribed"})
		}
	}), "tok")

	sub := c.Subscribe(context.Background(), "https://push.test/ep", gateway.Keys{P256dh: "pk", Auth: "ak"})
	assert.True(t, sub.OK)

	unsub := c.Unsubscribe(context.Background(), "https://push.test/ep")
	assert.False(t, unsub.OK)
	assert.Equal(t, "not subscribed", unsub.Message)
}

func TestSubscribeRequiresToken(t *testing.T) {
	c, _ := newClient(t, http.NotFoundHandler(), "")
	res := c.Subscribe(context.Background(), "https://push.test/ep", gateway.Keys{P256dh: "pk", Auth: "ak"})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, gateway.ErrUnauthenticated)
}
