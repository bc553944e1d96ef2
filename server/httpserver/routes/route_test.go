package routes

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/AgoraIO-Community/go-tokenbuilder/accesstoken"
	"github.com/THPTUHA/livelook/pkg/logger"
	"github.com/THPTUHA/livelook/server/httpserver/controllers"
	"github.com/THPTUHA/livelook/server/httpserver/middlewares"
	"github.com/THPTUHA/livelook/server/registry"
	"github.com/THPTUHA/livelook/server/rtctoken"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type statusBody struct {
	IsLive        bool    `json:"isLive"`
	BroadcasterID *string `json:"broadcasterId"`
	StartTime     *int64  `json:"startTime"`
}

func newTestRouter(t *testing.T, issuer rtctoken.Issuer, limiter *middlewares.IPRateLimiter) (*gin.Engine, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(registry.DefaultChannels, registry.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctr := controllers.NewController(&controllers.ControllerConfig{Registry: reg, Issuer: issuer})
	r, err := Build(ctr, Options{RateLimiter: limiter})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return r, reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)
	if rr := do(t, r, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestSeattleScenarioOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	rr := do(t, r, http.MethodGet, "/status?channel=WA_SEATTLE", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rr.Code)
	}
	var st statusBody
	decode(t, rr, &st)
	if st.IsLive || st.BroadcasterID != nil || st.StartTime != nil {
		t.Fatalf("expected free channel, got %s", rr.Body.String())
	}

	var start struct {
		Allowed bool `json:"allowed"`
	}
	decode(t, do(t, r, http.MethodPost, "/start", `{"channel":"WA_SEATTLE","userId":"u42"}`), &start)
	if !start.Allowed {
		t.Fatalf("expected u42 to be allowed")
	}

	decode(t, do(t, r, http.MethodGet, "/status?channel=WA_SEATTLE", ""), &st)
	if !st.IsLive || st.BroadcasterID == nil || *st.BroadcasterID != "u42" || st.StartTime == nil {
		t.Fatalf("expected live channel held by u42, got %+v", st)
	}

	decode(t, do(t, r, http.MethodPost, "/start", `{"channel":"WA_SEATTLE","userId":"u99"}`), &start)
	if start.Allowed {
		t.Fatalf("expected u99 to be rejected")
	}

	var end struct {
		Success bool `json:"success"`
	}
	decode(t, do(t, r, http.MethodPost, "/end", `{"channel":"WA_SEATTLE"}`), &end)
	if !end.Success {
		t.Fatalf("expected end success")
	}
	decode(t, do(t, r, http.MethodPost, "/end", `{"channel":"WA_SEATTLE"}`), &end)
	if !end.Success {
		t.Fatalf("expected repeated end to succeed")
	}

	decode(t, do(t, r, http.MethodGet, "/status?channel=WA_SEATTLE", ""), &st)
	if st.IsLive {
		t.Fatalf("expected free channel after end")
	}

	decode(t, do(t, r, http.MethodPost, "/apis/v1/start", `{"channel":"WA_SEATTLE","userId":"u99"}`), &start)
	if !start.Allowed {
		t.Fatalf("expected u99 to be allowed after release")
	}
}

func TestNumericUserID(t *testing.T) {
	r, reg := newTestRouter(t, nil, nil)

	rr := do(t, r, http.MethodPost, "/start", `{"channel":"NY_TIMES_SQUARE","userId":12345678901234567}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	ch, _ := reg.Query("NY_TIMES_SQUARE")
	if ch.BroadcasterID == nil || *ch.BroadcasterID != "12345678901234567" {
		t.Fatalf("numeric user id not preserved: %v", ch.BroadcasterID)
	}
}

func TestInvalidChannel(t *testing.T) {
	r, reg := newTestRouter(t, nil, nil)

	tests := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/status", ""},
		{http.MethodGet, "/status?channel=UNKNOWN_CHANNEL", ""},
		{http.MethodPost, "/start", `{"userId":"u1"}`},
		{http.MethodPost, "/start", `{"channel":"UNKNOWN_CHANNEL","userId":"u1"}`},
		{http.MethodPost, "/end", `{"channel":"UNKNOWN_CHANNEL"}`},
		{http.MethodGet, "/rtc-token?channel=UNKNOWN_CHANNEL&role=publisher", ""},
	}
	for _, tt := range tests {
		rr := do(t, r, tt.method, tt.path, tt.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tt.method, tt.path, rr.Code)
		}
		var body map[string]string
		decode(t, rr, &body)
		if body["error"] != "Invalid channel" {
			t.Fatalf("%s %s: unexpected error body %v", tt.method, tt.path, body)
		}
	}
	if len(reg.List()) != len(registry.DefaultChannels) {
		t.Fatalf("unknown channels must not be created")
	}
}

func TestStartRejectsBadBodies(t *testing.T) {
	r, reg := newTestRouter(t, nil, nil)

	for _, body := range []string{
		`{"channel":"WA_SEATTLE"}`,
		`{"channel":"WA_SEATTLE","userId":true}`,
		`{"channel":`,
	} {
		if rr := do(t, r, http.MethodPost, "/start", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
	}
	ch, _ := reg.Query("WA_SEATTLE")
	if ch.IsLive {
		t.Fatalf("rejected requests must not reserve the channel")
	}
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	const clients = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := do(t, r, http.MethodPost, "/start", `{"channel":"CA_SANTA_MONICA","userId":`+string(rune('0'+i%10))+`}`)
			var body struct {
				Allowed bool `json:"allowed"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if body.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if allowed != 1 {
		t.Fatalf("expected exactly one allowed start, got %d", allowed)
	}
}

func TestListChannels(t *testing.T) {
	r, reg := newTestRouter(t, nil, nil)
	_, _ = reg.Reserve("CA_SANTA_MONICA", "u7")

	var body struct {
		Channels []struct {
			Name   string `json:"name"`
			IsLive bool   `json:"isLive"`
		} `json:"channels"`
	}
	decode(t, do(t, r, http.MethodGet, "/channels", ""), &body)
	if len(body.Channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(body.Channels))
	}
	if body.Channels[1].Name != "CA_SANTA_MONICA" || !body.Channels[1].IsLive || body.Channels[0].IsLive {
		t.Fatalf("unexpected listing %+v", body.Channels)
	}
}

func TestRTCToken(t *testing.T) {
	issuer := rtctoken.NewAgoraIssuer(rtctoken.Config{
		AppID:          "0123456789abcdef0123456789abcdef",
		AppCertificate: "fedcba9876543210fedcba9876543210",
	})
	r, _ := newTestRouter(t, issuer, nil)

	rr := do(t, r, http.MethodGet, "/rtc-token?channel=WA_SEATTLE&role=publisher&uid=42", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Token string `json:"token"`
		UID   uint32 `json:"uid"`
	}
	decode(t, rr, &body)
	if body.UID != 42 || body.Token == "" {
		t.Fatalf("unexpected token response %+v", body)
	}
	var at accesstoken.AccessToken
	if !at.FromString(body.Token) {
		t.Fatalf("cannot parse token %s", body.Token)
	}
	if at.CrcChannelName != crc32.ChecksumIEEE([]byte("WA_SEATTLE")) || at.CrcUid != crc32.ChecksumIEEE([]byte("42")) {
		t.Fatalf("token not bound to WA_SEATTLE/42")
	}
	if _, ok := at.Message[accesstoken.KPublishVideoStream]; !ok {
		t.Fatalf("publisher token lacks publish privilege: %v", at.Message)
	}

	decode(t, do(t, r, http.MethodGet, "/rtc-token?channel=WA_SEATTLE&role=audience", ""), &body)
	if body.UID == 0 {
		t.Fatalf("expected generated uid")
	}

	for _, path := range []string{
		"/rtc-token?channel=WA_SEATTLE",
		"/rtc-token?channel=WA_SEATTLE&role=admin",
		"/rtc-token?channel=WA_SEATTLE&role=publisher&uid=abc",
		"/rtc-token?channel=WA_SEATTLE&role=publisher&uid=99999999999",
	} {
		if rr := do(t, r, http.MethodGet, path, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}

func TestRTCTokenNotConfigured(t *testing.T) {
	r, _ := newTestRouter(t, rtctoken.NewAgoraIssuer(rtctoken.Config{}), nil)
	if rr := do(t, r, http.MethodGet, "/rtc-token?channel=WA_SEATTLE&role=publisher", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	r, _ = newTestRouter(t, nil, nil)
	if rr := do(t, r, http.MethodGet, "/rtc-token?channel=WA_SEATTLE&role=publisher", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without issuer, got %d", rr.Code)
	}
}

func TestWriteRoutesAreRateLimited(t *testing.T) {
	r, _ := newTestRouter(t, nil, middlewares.NewIPRateLimiter(0.001, 1))

	if rr := do(t, r, http.MethodPost, "/end", `{"channel":"WA_SEATTLE"}`); rr.Code != http.StatusOK {
		t.Fatalf("expected first write to pass, got %d", rr.Code)
	}
	if rr := do(t, r, http.MethodPost, "/end", `{"channel":"WA_SEATTLE"}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := do(t, r, http.MethodGet, "/status?channel=WA_SEATTLE", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rr.Code)
	}
}

func TestForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	r, _ := newTestRouter(t, nil, middlewares.NewIPRateLimiter(1, 1))

	passed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/end", bytes.NewBufferString(`{"channel":"WA_SEATTLE"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:4711"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			passed++
		}
	}
	if passed != 1 {
		t.Fatalf("expected one write from 203.0.113.7 to pass, got %d", passed)
	}
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	reg, err := registry.New(registry.DefaultChannels, registry.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctr := controllers.NewController(&controllers.ControllerConfig{Registry: reg})
	r, err := Build(ctr, Options{
		TrustedProxies: []string{"10.0.0.0/8"},
		RateLimiter:    middlewares.NewIPRateLimiter(1, 1),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/end", bytes.NewBufferString(`{"channel":"WA_SEATTLE"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.1.2.3:4711"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("client %d behind trusted proxy: expected 200, got %d", i, rr.Code)
		}
	}

	if _, err := Build(ctr, Options{TrustedProxies: []string{"not-an-ip"}}); err == nil {
		t.Fatalf("expected error for malformed trusted proxy")
	}
}

func TestPreflight(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/start", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard allow-origin")
	}
}
