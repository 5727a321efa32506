package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/telekom/nekomail/pkg/apiresponses"
	"github.com/telekom/nekomail/pkg/config"
	"github.com/telekom/nekomail/pkg/dedup"
	"github.com/telekom/nekomail/pkg/dispatch"
	"github.com/telekom/nekomail/pkg/mail"
	"github.com/telekom/nekomail/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRelay records messages; it waits for release when set.
type fakeRelay struct {
	mu      sync.Mutex
	err     error
	release chan struct{}
	sent    []*mail.Message
}

func (r *fakeRelay) Send(msg *mail.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	if r.release != nil {
		<-r.release
	}
	return r.err
}

func (r *fakeRelay) Host() string { return "fake" }

func (r *fakeRelay) messages() []*mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mail.Message(nil), r.sent...)
}

type testEnv struct {
	server   *Server
	send     *SendController
	relay    *fakeRelay
	admitClk *clocktesting.FakeClock
	sendClk  clock.Clock
}

type envOption func(*testEnv)

func withDispatchClock(clk clock.Clock) envOption {
	return func(e *testEnv) { e.sendClk = clk }
}

func newTestEnv(t *testing.T, relay *fakeRelay, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		relay:    relay,
		admitClk: clocktesting.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
		sendClk:  clock.RealClock{},
	}
	for _, o := range opts {
		o(env)
	}

	cfg := config.Config{Mail: config.Mail{User: "bot@gmail.com", Password: "x"}}
	cfg.Defaults()
	log := zaptest.NewLogger(t)

	env.server = NewServer(log, cfg, false)
	gin.SetMode(gin.TestMode)

	env.send = NewSendController(log.Sugar(), cfg, SendDependencies{
		Limiter:  ratelimit.NewWindowLimiter(ratelimit.WindowConfig{Clock: env.admitClk}),
		Slowdown: ratelimit.NewSlowdown(ratelimit.SlowdownConfig{Window: ratelimit.DefaultWindow, DelayAfter: ratelimit.DefaultDelayAfter, DelayStep: ratelimit.DefaultDelayStep, Clock: env.admitClk}),
		Dedup:    dedup.New(dedup.WithClock(env.admitClk)),
		Dispatcher: dispatch.New(relay,
			dispatch.WithClock(env.sendClk),
			dispatch.WithLogger(log.Sugar())),
	})
	require.NoError(t, env.server.RegisterAll([]APIController{env.send}))

	t.Cleanup(func() {
		env.send.Close()
		env.server.Close()
	})
	return env
}

func sendBody(to, subject, message, template string) string {
	b, _ := json.Marshal(map[string]string{"to": to, "subject": subject, "message": message, "template": template})
	return string(b)
}

func (e *testEnv) post(body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, SendPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apiresponses.MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Message
}

func TestSendEmailSuccess(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	w := env.post(sendBody("  Neko.Chan+news@GoogleMail.com ", "Hi & welcome", "Hello <b>there</b>", ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, SentMessage, messageOf(t, w))

	sent := env.relay.messages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "nekochan@gmail.com", msg.To)
	assert.Equal(t, "[NekoMail] Hi & welcome", msg.Subject)
	assert.Equal(t, "bot@gmail.com", msg.FromAddress)
	assert.Equal(t, "NekoMail", msg.FromName)
	assert.Contains(t, msg.HTMLBody, "Hi &amp; welcome")
	assert.Contains(t, msg.HTMLBody, "Hello &lt;b&gt;there&lt;&#x2F;b&gt;")
	assert.Contains(t, msg.HTMLBody, "#f9f9f9", "default style is used")
}

func TestSendEmailTemplates(t *testing.T) {
	tests := []struct {
		template string
		marker   string
	}{
		{"announcement", "#fffbea"},
		{"registration", "Registered email: <b>cat@gmail.com</b>"},
		{"no-such-style", "#f9f9f9"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			env := newTestEnv(t, &fakeRelay{})
			w := env.post(sendBody("cat@gmail.com", "s", "m", tt.template))
			require.Equal(t, http.StatusOK, w.Code)
			sent := env.relay.messages()
			require.Len(t, sent, 1)
			assert.Contains(t, sent[0].HTMLBody, tt.marker)
		})
	}
}

func TestSendEmailBlockedDomain(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	w := env.post(sendBody("someone@example.com", "s", "m", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, BlockedMessage, messageOf(t, w))
	assert.Empty(t, env.relay.messages(), "relay must not be contacted")

	// the rejected request still claimed its fingerprint
	w = env.post(sendBody("someone@example.com", "s", "m", ""))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, DuplicateMessage, messageOf(t, w))
}

func TestSendEmailDuplicate(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})
	body := sendBody("cat@gmail.com", "Hello", "same message", "")

	require.Equal(t, http.StatusOK, env.post(body).Code)

	w := env.post(body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, DuplicateMessage, messageOf(t, w))
	assert.Len(t, env.relay.messages(), 1)

	// normalization makes these the same recipient
	w = env.post(sendBody("c.a.t+x@gmail.com", "Hello", "same message", ""))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// a different message is not a duplicate
	assert.Equal(t, http.StatusOK, env.post(sendBody("cat@gmail.com", "Hello", "other message", "")).Code)

	env.admitClk.Step(dedup.TTL + time.Second)
	assert.Equal(t, http.StatusOK, env.post(body).Code)
}

func TestSendEmailValidation(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	tests := []struct {
		name  string
		body  string
		paths []string
	}{
		{"missing fields", `{}`, []string{"to", "subject", "message"}},
		{"invalid email", sendBody("not-an-email", "s", "m", ""), []string{"to"}},
		{"blank subject", sendBody("cat@gmail.com", "   ", "m", ""), []string{"subject"}},
		{"subject too long", sendBody("cat@gmail.com", strings.Repeat("s", 101), "m", ""), []string{"subject"}},
		{"message too long", sendBody("cat@gmail.com", "s", strings.Repeat("m", 2001), ""), []string{"message"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post(tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp apiresponses.ValidationResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			var paths []string
			for _, e := range resp.Errors {
				paths = append(paths, e.Path)
				assert.Equal(t, "body", e.Location)
			}
			assert.ElementsMatch(t, tt.paths, paths)
		})
	}
	assert.Empty(t, env.relay.messages())
}

func TestSendEmailMalformedJSON(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	for _, body := range []string{`{"to":`, ``, `[1,2]`, `{"to": 42}`} {
		w := env.post(body)
		require.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		var resp apiresponses.ValidationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, apiresponses.InvalidJSONMessage, resp.Errors[0].Msg)
	}
}

func TestSendEmailBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	w := env.post(sendBody("cat@gmail.com", "s", strings.Repeat("x", MaxBodyBytes), ""))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, env.relay.messages())
}

func TestSendEmailRateLimitAndSlowdown(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	var codes []int
	var delays []time.Duration
	for i := 1; i <= 20; i++ {
		start := env.admitClk.Now()
		w := env.post(sendBody("cat@gmail.com", "s", fmt.Sprintf("message %d", i), ""))
		codes = append(codes, w.Code)
		delays = append(delays, env.admitClk.Since(start))

		if i > 15 {
			assert.Equal(t, ratelimit.LimitMessage, messageOf(t, w))
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	for i, code := range codes {
		n := i + 1
		if n <= 15 {
			assert.Equal(t, http.StatusOK, code, "request %d", n)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, code, "request %d", n)
		}
		switch {
		case n <= 5 || n > 15:
			assert.Zero(t, delays[i], "request %d", n)
		default:
			assert.Equal(t, time.Duration(n)*200*time.Millisecond, delays[i], "request %d", n)
		}
	}
	assert.Len(t, env.relay.messages(), 15)

	// the window rolls: once the first hits age out the client is admitted again
	env.admitClk.Step(ratelimit.DefaultWindow)
	assert.Equal(t, http.StatusOK, env.post(sendBody("cat@gmail.com", "s", "after the window", "")).Code)
}

func TestSendEmailRateLimitIsPerClient(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	for i := 0; i < 16; i++ {
		env.post(sendBody("cat@gmail.com", "s", fmt.Sprintf("m%d", i), ""))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, SendPath, strings.NewReader(sendBody("cat@gmail.com", "s", "other client", "")))
	req.RemoteAddr = "198.51.100.7:4321"
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSendEmailTimeout(t *testing.T) {
	sendClk := clocktesting.NewFakeClock(time.Now())
	relay := &fakeRelay{release: make(chan struct{})}
	defer close(relay.release)
	env := newTestEnv(t, relay, withDispatchClock(sendClk))

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- env.post(sendBody("cat@gmail.com", "s", "slow", "")) }()

	require.Eventually(t, sendClk.HasWaiters, time.Second, time.Millisecond)
	sendClk.Step(dispatch.DefaultTimeout)

	select {
	case w := <-done:
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, apiresponses.TimeoutMessage, messageOf(t, w))
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete after the deadline")
	}
}

func TestSendEmailRelayFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"relay unreachable", &mail.ConnectionError{Host: "smtp", Err: errors.New("connection refused")}, http.StatusServiceUnavailable, apiresponses.UnavailableMessage},
		{"backlog full", mail.ErrQueueFull, http.StatusServiceUnavailable, apiresponses.UnavailableMessage},
		{"message rejected", errors.New("550 5.7.1 rejected"), http.StatusInternalServerError, apiresponses.FailedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeRelay{err: tt.err})
			w := env.post(sendBody("cat@gmail.com", "s", "m", ""))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, messageOf(t, w))
			assert.NotContains(t, w.Body.String(), "550")
		})
	}
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	w := env.get("/")
	require.Equal(t, http.StatusOK, w.Code)

	var info InfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "Nekomailer API", info.Message)
	assert.Equal(t, http.MethodPost, info.Endpoint.Method)
	assert.Equal(t, "/send-email", info.Endpoint.Path)
	assert.NotEmpty(t, info.Endpoint.Description)
	assert.NotEmpty(t, info.Endpoint.Note)
}

func TestAuxiliaryRoutes(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	w := env.get("/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.get("/version")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)

	env.post(sendBody("cat@gmail.com", "s", "m", ""))
	w = env.get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nekomail_send_requests_total")

	w = env.get("/favicon.ico")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte{0, 0, 1, 0}), "ICO header")
	assert.NotEmpty(t, w.Header().Get("Cache-Control"))

	w = env.get("/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponseHeaders(t *testing.T) {
	env := newTestEnv(t, &fakeRelay{})

	w := env.get("/")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "3f2b1c9e-6b1a-4a53-9d8e-2f8f0c1b7a11")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, "3f2b1c9e-6b1a-4a53-9d8e-2f8f0c1b7a11", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
}

func TestSendController_DefaultDedupIsReaped(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	cfg := config.Config{Mail: config.Mail{User: "bot@gmail.com", Password: "x"}}
	cfg.Defaults()

	sc := NewSendController(zaptest.NewLogger(t).Sugar(), cfg, SendDependencies{
		Dispatcher: dispatch.New(&fakeRelay{}),
		Clock:      clk,
	})
	defer sc.Close()

	require.NoError(t, sc.deps.Dedup.CheckAndMark("cat@gmail.com-Hi-Meow"))
	require.Equal(t, 1, sc.deps.Dedup.Len())

	assert.Eventually(t, func() bool {
		clk.Step(dedup.TTL)
		return sc.deps.Dedup.Len() == 0
	}, time.Second, 10*time.Millisecond, "the default cache runs its reaper")
}
