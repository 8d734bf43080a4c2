package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProductTarget is the SKU and quantity being bought. It does not change during a run.
type ProductTarget struct {
	SKUID    string
	Quantity int
}

// Sequencer performs the side-effecting calls that make the session eligible to submit an order.
type Sequencer interface {
	VisitLink(ctx context.Context, link string) error
	OpenCheckoutPage(ctx context.Context, target ProductTarget) error
}

// CheckoutSequencer has no internal retry: every failure goes back to the attack loop.
type CheckoutSequencer struct {
	session     *Session
	endpoints   Endpoints
	pageTimeout time.Duration
	logger      *zap.Logger
}

func NewCheckoutSequencer(session *Session, endpoints Endpoints, pageTimeout time.Duration, logger *zap.Logger) *CheckoutSequencer {
	if pageTimeout <= 0 {
		pageTimeout = 2 * time.Second
	}
	return &CheckoutSequencer{
		session:     session,
		endpoints:   endpoints,
		pageTimeout: pageTimeout,
		logger:      logger,
	}
}

// VisitLink requests the resolved link so the server sets its checkout cookies.
func (c *CheckoutSequencer) VisitLink(ctx context.Context, link string) error {
	resp, err := c.session.do(ctx, request{
		url:     link,
		referer: c.endpoints.Item(skuFromLink(link)),
	})
	if err != nil {
		return fmt.Errorf("visit purchase link: %w", err)
	}
	return c.checkStatus("visit purchase link", resp)
}

func (c *CheckoutSequencer) OpenCheckoutPage(ctx context.Context, target ProductTarget) error {
	c.logger.Info(T("checkout_page_opening"))
	resp, err := c.session.do(ctx, request{
		url: c.endpoints.CheckoutPage,
		query: url.Values{
			"skuId": {target.SKUID},
			"num":   {strconv.Itoa(target.Quantity)},
			"rid":   {strconv.FormatInt(time.Now().Unix(), 10)},
		},
		referer: c.endpoints.Item(target.SKUID),
		timeout: c.pageTimeout,
	})
	if err != nil {
		return fmt.Errorf("open checkout page: %w", err)
	}
	return c.checkStatus("open checkout page", resp)
}

// checkStatus accepts 2xx and the cookie-setting 3xx hops; a hop to the passport host means the login is gone.
func (c *CheckoutSequencer) checkStatus(step string, resp *response) error {
	switch {
	case resp.redirected():
		if isLoginRedirect(resp.location) {
			return fmt.Errorf("%s: %w: redirected to %s", step, ErrSessionInvalid, resp.location)
		}
		c.logger.Debug("redirect not followed", zap.String("step", step), zap.Int("status", resp.status), zap.String("location", resp.location))
		return nil
	case resp.status >= 400:
		return fmt.Errorf("%w: %s: HTTP %d", ErrNetwork, step, resp.status)
	}
	return nil
}

func isLoginRedirect(location string) bool {
	return strings.Contains(location, "passport.jd.com") || strings.Contains(location, "/new/login.aspx")
}

// skuFromLink reads the skuId query parameter of a checkout link.
func skuFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("skuId")
}
