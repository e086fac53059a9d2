package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tsquare/htmldoc"
)

// TwoFactor renders the two-factor challenge and lets the user approve it.
//
// IframeURL renders page (served from base) without showing it, waits for the
// client-side script to point the challenge iframe somewhere and returns that
// URL. It returns "" when ctx expires first. Approve shows frameURL to the
// user and returns once the push was approved or ctx expired.
type TwoFactor interface {
	IframeURL(ctx context.Context, page, base string) (string, error)
	Approve(ctx context.Context, frameURL string) error
}

// approvedScript is true once the challenge frame reports the approval.
const approvedScript = `document.body !== null && /Success|Logging you in/.test(document.body.innerText)`

// ChromeTwoFactor drives a local Chrome through chromedp.
type ChromeTwoFactor struct {
	// FrameMarker identifies the challenge iframe in the rendered DOM.
	FrameMarker string
	// Limit bounds the search for the iframe src.
	Limit int
	// Headless controls whether the hidden render really is hidden; the
	// approval window is always visible.
	Headless bool
	// Cookies, when set, supplies the login session cookies the hidden
	// render needs for the page's own requests.
	Cookies func(rawURL string) []*http.Cookie
	Log     logrus.FieldLogger
}

// NewChromeTwoFactor returns a ChromeTwoFactor with the usual Duo marker.
func NewChromeTwoFactor(logger logrus.FieldLogger) *ChromeTwoFactor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChromeTwoFactor{
		FrameMarker: `id="` + DefaultOptions.TwoFactorMarker + `"`,
		Limit:       1000,
		Headless:    true,
		Log:         logger.WithField("component", "twofactor"),
	}
}

func (c *ChromeTwoFactor) browser(ctx context.Context, headless bool) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", headless))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

// IframeURL implements TwoFactor.
func (c *ChromeTwoFactor) IframeURL(ctx context.Context, body, base string) (string, error) {
	bctx, cancel := c.browser(ctx, c.Headless)
	defer cancel()

	var snapshot string
	err := chromedp.Run(bctx,
		chromedp.Navigate("about:blank"),
		c.setCookies(base),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, withBase(body, base)).Do(ctx)
		}),
		chromedp.WaitReady(`iframe[src^="http"]`, chromedp.ByQuery),
		chromedp.OuterHTML("html", &snapshot, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrap(err, "render two-factor page")
	}
	frame, ok := htmldoc.ExtractAfter(snapshot, c.FrameMarker, `src="`, c.Limit)
	if !ok {
		c.Log.Debug("challenge iframe has no src yet")
		return "", nil
	}
	return strings.ReplaceAll(frame, "&amp;", "&"), nil
}

// Approve implements TwoFactor.
func (c *ChromeTwoFactor) Approve(ctx context.Context, frameURL string) error {
	if frameURL == "" {
		return errors.New("no two-factor frame to show")
	}
	bctx, cancel := c.browser(ctx, false)
	defer cancel()

	c.Log.Info("approve the two-factor prompt in the browser window")
	err := chromedp.Run(bctx,
		chromedp.Navigate(frameURL),
		chromedp.Poll(approvedScript, nil, chromedp.WithPollingInterval(500*time.Millisecond)),
	)
	return errors.Wrap(err, "wait for two-factor approval")
}

func (c *ChromeTwoFactor) setCookies(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if c.Cookies == nil {
			return nil
		}
		for _, ck := range c.Cookies(rawURL) {
			if err := network.SetCookie(ck.Name, ck.Value).WithURL(rawURL).Do(ctx); err != nil {
				return errors.Wrapf(err, "set cookie %s", ck.Name)
			}
		}
		return nil
	})
}

// withBase makes relative script and frame URLs in body resolve against base.
func withBase(body, base string) string {
	tag := `<base href="` + base + `">`
	lower := strings.ToLower(body)
	if i := strings.Index(lower, "<head>"); i != -1 {
		return body[:i+len("<head>")] + tag + body[i+len("<head>"):]
	}
	return tag + body
}
