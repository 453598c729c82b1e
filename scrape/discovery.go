package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"

	"github.com/mentionwatch/mentionwatch/browser"
	"github.com/mentionwatch/mentionwatch/retry"
	"github.com/mentionwatch/mentionwatch/store"
	"github.com/mentionwatch/mentionwatch/ticker"
)

// DiscoverySelectors target the link-discovery page's channel entries.
type DiscoverySelectors struct {
	Entry string `yaml:"entry"` // one listing entry
	Link  string `yaml:"link"`  // anchor with the channel URL
}

func (d *DiscoverySelectors) applyDefaults() {
	if d.Entry == "" {
		d.Entry = "div.channel-entry"
	}
	if d.Link == "" {
		d.Link = "a[href]"
	}
}

// Candidate is one discovered channel with the listing text around it.
type Candidate struct {
	Target *store.ChannelTarget
	Record *store.SourceRecord
}

// DiscoveryScraper finds new channel targets on a discovery page.
//
// Two independent extraction strategies run against the same page and
// their results are unioned by handle: a DOM-interaction strategy
// through the browser session, and a static-markup strategy that
// fetches the page over plain HTTP and parses anchors. When one
// strategy's selectors break, the other still yields candidates.
type DiscoveryScraper struct {
	session   browser.Session
	pageURL   string
	selectors DiscoverySelectors
	policy    retry.Policy
	logger    *slog.Logger
	userAgent string
}

// NewDiscoveryScraper creates a DiscoveryScraper for one discovery page.
func NewDiscoveryScraper(session browser.Session, pageURL string, sel DiscoverySelectors, policy retry.Policy, userAgent string, logger *slog.Logger) *DiscoveryScraper {
	sel.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if userAgent == "" {
		userAgent = "mentionwatch/1.0"
	}
	policy.Retryable = Retryable
	return &DiscoveryScraper{
		session:   session,
		pageURL:   pageURL,
		selectors: sel,
		policy:    policy,
		logger:    logger,
		userAgent: userAgent,
	}
}

// Scrape runs both strategies and unions their candidates by handle.
// It fails only when both strategies fail; one broken strategy is
// logged and absorbed.
func (d *DiscoveryScraper) Scrape(ctx context.Context, limits Limits) ([]Candidate, error) {
	limits = limits.defaults()
	log := d.logger.With("scraper", "discovery", "url", d.pageURL)

	byHandle := make(map[string]Candidate)

	domErr := d.policy.Do(ctx, "discovery dom", func(ctx context.Context) error {
		return d.scrapeDOM(ctx, limits, byHandle)
	})
	if domErr != nil {
		log.Warn("dom strategy failed", "error", domErr)
	}

	staticErr := d.scrapeStatic(ctx, byHandle)
	if staticErr != nil {
		log.Warn("static strategy failed", "error", staticErr)
	}

	if domErr != nil && staticErr != nil {
		return nil, fmt.Errorf("scrape: both discovery strategies failed: dom: %v; static: %v", domErr, staticErr)
	}

	handles := make([]string, 0, len(byHandle))
	for h := range byHandle {
		handles = append(handles, h)
	}
	sort.Strings(handles)

	candidates := make([]Candidate, 0, len(byHandle))
	for _, h := range handles {
		candidates = append(candidates, byHandle[h])
		if len(candidates) >= limits.MaxItems {
			break
		}
	}

	log.Info("discovery complete", "candidates", len(candidates),
		"dom_ok", domErr == nil, "static_ok", staticErr == nil)
	return candidates, nil
}

// scrapeDOM drives the live page through the browser session.
func (d *DiscoveryScraper) scrapeDOM(ctx context.Context, limits Limits, out map[string]Candidate) error {
	page, err := d.session.Open(ctx, d.pageURL)
	if err != nil {
		return &TransientError{Target: d.pageURL, Cause: err}
	}
	defer page.Close()

	// One scroll pass: discovery pages lazy-load the tail of the list.
	if err := page.ScrollToBottom(ctx); err == nil {
		sleep(ctx, limits.PageDelay)
	}

	entries, err := page.Elements(ctx, d.selectors.Entry)
	if err != nil {
		return &TransientError{Target: d.pageURL, Cause: err}
	}

	for _, entry := range entries {
		link := elementAttr(entry, d.selectors.Link, "href")
		handle := handleFromURL(link)
		if handle == "" {
			continue
		}
		text, _ := entry.Text()
		addCandidate(out, handle, link, text)
	}
	return nil
}

// scrapeStatic fetches the same page over plain HTTP and parses the
// static markup. Independent of the browser and its selectors.
func (d *DiscoveryScraper) scrapeStatic(ctx context.Context, out map[string]Candidate) error {
	c := colly.NewCollector(colly.UserAgent(d.userAgent))
	c.SetRequestTimeout(30 * time.Second)

	var visitErr error
	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			visitErr = err
			return
		}
		base, _ := url.Parse(d.pageURL)
		doc.Find(d.selectors.Entry).Each(func(_ int, entry *goquery.Selection) {
			href, _ := entry.Find(d.selectors.Link).First().Attr("href")
			handle := handleFromURL(href)
			if handle == "" {
				return
			}
			addCandidate(out, handle, absoluteURL(base, href), strings.TrimSpace(entry.Text()))
		})
	})

	if err := c.Visit(d.pageURL); err != nil {
		return &TransientError{Target: d.pageURL, Cause: err}
	}
	c.Wait()
	if visitErr != nil {
		return &TransientError{Target: d.pageURL, Cause: visitErr}
	}
	_ = ctx // colly v1 has no context plumbing; the request timeout bounds it
	return nil
}

// absoluteURL resolves href against the page URL.
func absoluteURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// addCandidate records a handle once; the first strategy to find it
// wins, later sightings only enrich empty fields.
func addCandidate(out map[string]Candidate, handle, link, text string) {
	if existing, ok := out[handle]; ok {
		if existing.Target.URL == "" && link != "" {
			existing.Target.URL = link
		}
		return
	}
	now := time.Now().UnixMilli()
	out[handle] = Candidate{
		Target: &store.ChannelTarget{
			Handle:       handle,
			URL:          link,
			DiscoveredAt: now,
		},
		Record: &store.SourceRecord{
			ExternalID: "discovery:" + handle,
			Kind:       store.KindDiscovery,
			URL:        link,
			Author:     handle,
			RawText:    ticker.Normalize(text),
		},
	}
}

// handleFromURL extracts a channel handle from a link: the "@name"
// path segment when present, otherwise the last path segment of a
// channel-looking URL. Non-channel links yield "".
func handleFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for _, p := range parts {
		if strings.HasPrefix(p, "@") && len(p) > 1 {
			return p
		}
	}
	// Fall back to t.me-style "/joinchat/xyz" or "/channelname".
	if len(parts) == 1 && parts[0] != "" && u.Hostname() != "" {
		return "@" + parts[0]
	}
	return ""
}
