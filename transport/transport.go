// Package transport issues the portal's HTTP requests: a colly collector with
// a persistent cookie jar, a mobile user agent, cache busting and a small
// retry budget.
package transport

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/debug"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// MobileUserAgent makes the portal serve its lightweight mobile markup.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 9_0 like Mac OS X) AppleWebKit/601.1.46 (KHTML, like Gecko) Version/9.0 Mobile/13A344 Safari/601.1"

const bodyKey = "body"

// ErrNetworkUnavailable is returned once every attempt for a request failed.
var ErrNetworkUnavailable = errors.New("network unavailable")

// RetryPolicy bounds the number of attempts per request. POSTs get their own
// bound because the portal's form posts are not all idempotent.
type RetryPolicy struct {
	GetAttempts  int
	PostAttempts int
}

// DefaultRetryPolicy is three GETs and a single POST.
var DefaultRetryPolicy = RetryPolicy{GetAttempts: 3, PostAttempts: 1}

// Options configures a Client.
type Options struct {
	UserAgent string
	Retry     RetryPolicy
	Timeout   time.Duration
	Debug     bool
}

// Client performs GET and form POST requests, keeping every cookie the
// portal sets for the lifetime of the Client.
type Client struct {
	mu        sync.RWMutex
	collector *colly.Collector
	jar       *cookiejar.Jar
	userAgent string
	retry     RetryPolicy
	log       logrus.FieldLogger
}

// New creates a Client.
func New(opts Options, logger logrus.FieldLogger) (*Client, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = MobileUserAgent
	}
	if opts.Retry.GetAttempts < 1 {
		opts.Retry.GetAttempts = DefaultRetryPolicy.GetAttempts
	}
	if opts.Retry.PostAttempts < 1 {
		opts.Retry.PostAttempts = DefaultRetryPolicy.PostAttempts
	}

	options := []colly.CollectorOption{
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	if opts.Debug {
		options = append(options, colly.Debugger(&debug.LogDebugger{}))
	}
	c := colly.NewCollector(options...)
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(bodyKey, string(r.Body))
	})

	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	c.SetCookieJar(jar)

	return &Client{
		collector: c,
		jar:       jar,
		userAgent: opts.UserAgent,
		retry:     opts.Retry,
		log:       logger.WithField("component", "transport"),
	}, nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}
	return jar, nil
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, c.retry.GetAttempts)
}

// Post submits form to rawURL as application/x-www-form-urlencoded.
func (c *Client) Post(ctx context.Context, rawURL string, form url.Values) (string, error) {
	return c.do(ctx, http.MethodPost, rawURL, form, c.retry.PostAttempts)
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values, attempts int) (string, error) {
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, method+" "+rawURL)
		}
		body, err := c.once(method, rawURL, form)
		if err == nil {
			return body, nil
		}
		last = err
		c.log.WithFields(logrus.Fields{
			"method":  method,
			"url":     rawURL,
			"attempt": attempt,
		}).Debugf("request failed: %s", err)
	}
	c.log.WithField("url", rawURL).Warnf("%s gave up after %d attempts", method, attempts)
	return "", errors.Wrapf(ErrNetworkUnavailable, "%s %s: %s", method, rawURL, last)
}

func (c *Client) once(method, rawURL string, form url.Values) (string, error) {
	// colly only fills in its user agent when no header is passed
	hdr := http.Header{}
	hdr.Set("User-Agent", c.userAgent)
	hdr.Set("Cache-Control", "no-cache, no-store")
	hdr.Set("Pragma", "no-cache")

	var payload *strings.Reader
	if form != nil {
		hdr.Set("Content-Type", "application/x-www-form-urlencoded")
		payload = strings.NewReader(form.Encode())
	}

	rctx := colly.NewContext()
	c.mu.RLock()
	collector := c.collector
	c.mu.RUnlock()

	var err error
	if payload != nil {
		err = collector.Request(method, rawURL, payload, rctx, hdr)
	} else {
		err = collector.Request(method, rawURL, nil, rctx, hdr)
	}
	if err != nil {
		return "", err
	}
	body, ok := rctx.GetAny(bodyKey).(string)
	if !ok {
		return "", errors.New("empty response")
	}
	return body, nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jar.Cookies(u)
}

// ResetCookies discards the session. Subsequent requests start with an empty
// jar.
func (c *Client) ResetCookies() error {
	jar, err := newJar()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar = jar
	c.collector.SetCookieJar(jar)
	return nil
}
