package main

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

// fakeClock only moves when Sleep or Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

func testEndpoints(base string) Endpoints {
	return Endpoints{
		ItemPage:     base + "/item/%s.html",
		Routing:      base + "/itemShowBtn",
		CheckoutPage: base + "/seckill/seckill.action",
		InitInfo:     base + "/seckillnew/init.action",
		SubmitOrder:  base + "/seckillnew/submitOrder.action",
		UserInfo:     base + "/user/info",
		OrderList:    base + "/order/list",
		Reserve:      base + "/yushou/info",
		ServerTime:   base + "/server/time",
		LoginPage:    base + "/login",
		QRShow:       base + "/qr/show",
		QRCheck:      base + "/qr/check",
		QRValidate:   base + "/qr/validate",
		Home:         base + "/",
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	session, err := NewSession(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return session
}

// serverSession returns a session and endpoints pointing at srv.
func serverSession(t *testing.T, srv *httptest.Server) (*Session, Endpoints) {
	t.Helper()
	return newTestSession(t), testEndpoints(srv.URL)
}

func mustJSON(t *testing.T, raw string) gjson.Result {
	t.Helper()
	parsed, err := decodeJSON([]byte(raw))
	require.NoError(t, err)
	return parsed
}
