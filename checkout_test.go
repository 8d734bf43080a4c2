package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestVisitLink(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name:    "ok",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
		},
		{
			name: "cookie hop redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/seckill/seckill.action", http.StatusFound)
			},
		},
		{
			name: "login redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "https://passport.jd.com/new/login.aspx?ReturnUrl=x", http.StatusFound)
			},
			wantErr: ErrSessionInvalid,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantErr: ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			session, endpoints := serverSession(t, srv)
			seq := NewCheckoutSequencer(session, endpoints, 0, zaptest.NewLogger(t))
			err := seq.VisitLink(context.Background(), srv.URL+"/captcha.html?skuId=7")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVisitLinkRefersToItemPage(t *testing.T) {
	var referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
	}))
	defer srv.Close()

	session, endpoints := serverSession(t, srv)
	seq := NewCheckoutSequencer(session, endpoints, 0, zaptest.NewLogger(t))
	require.NoError(t, seq.VisitLink(context.Background(), srv.URL+"/captcha.html?skuId=42&sn=1"))
	assert.Equal(t, srv.URL+"/item/42.html", referer)
}

func TestOpenCheckoutPage(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/seckill/seckill.action", r.URL.Path)
		q := r.URL.Query()
		query = map[string]string{"skuId": q.Get("skuId"), "num": q.Get("num"), "rid": q.Get("rid")}
	}))
	defer srv.Close()

	session, endpoints := serverSession(t, srv)
	seq := NewCheckoutSequencer(session, endpoints, 0, zaptest.NewLogger(t))
	require.NoError(t, seq.OpenCheckoutPage(context.Background(), ProductTarget{SKUID: "42", Quantity: 2}))

	assert.Equal(t, "42", query["skuId"])
	assert.Equal(t, "2", query["num"])
	assert.NotEmpty(t, query["rid"])
}

func TestIsLoginRedirect(t *testing.T) {
	assert.True(t, isLoginRedirect("https://passport.jd.com/uc/login"))
	assert.True(t, isLoginRedirect("//x.jd.com/new/login.aspx"))
	assert.False(t, isLoginRedirect("https://marathon.jd.com/seckill/seckill.action"))
}
