package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mentionwatch/mentionwatch/browser"
	"github.com/mentionwatch/mentionwatch/retry"
	"github.com/mentionwatch/mentionwatch/store"
	"github.com/mentionwatch/mentionwatch/ticker"
)

// VideoSelectors are the CSS selectors for one short-video platform's
// search results. They are configuration because platforms change
// markup without notice.
type VideoSelectors struct {
	Card    string `yaml:"card"`     // one post card
	Link    string `yaml:"link"`     // anchor carrying the post URL
	Caption string `yaml:"caption"`  // caption / description text
	Author  string `yaml:"author"`   // author handle
	Likes   string `yaml:"likes"`    // like counter
	Comment string `yaml:"comments"` // comment counter
}

func (v *VideoSelectors) applyDefaults() {
	if v.Card == "" {
		v.Card = `div[data-e2e="search_video-item"]`
	}
	if v.Link == "" {
		v.Link = "a"
	}
	if v.Caption == "" {
		v.Caption = `[data-e2e="search-card-desc"]`
	}
	if v.Author == "" {
		v.Author = `[data-e2e="search-card-user-unique-id"]`
	}
	if v.Likes == "" {
		v.Likes = `[data-e2e="search-card-like-count"]`
	}
	if v.Comment == "" {
		v.Comment = `[data-e2e="search-card-comment-count"]`
	}
}

// VideoScraper scrolls a platform search page for a term or hashtag
// and emits one record per post card.
type VideoScraper struct {
	session   browser.Session
	searchURL string // template with {term}
	selectors VideoSelectors
	policy    retry.Policy
	logger    *slog.Logger
}

// NewVideoScraper creates a VideoScraper. searchURL must contain a
// {term} placeholder.
func NewVideoScraper(session browser.Session, searchURL string, sel VideoSelectors, policy retry.Policy, logger *slog.Logger) *VideoScraper {
	sel.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	policy.Retryable = Retryable
	return &VideoScraper{
		session:   session,
		searchURL: searchURL,
		selectors: sel,
		policy:    policy,
		logger:    logger,
	}
}

// Scrape collects post records for one search term. The sequence is
// finite, deduplicated within this call, and bounded by limits. A
// fresh call re-scrapes from the beginning.
func (v *VideoScraper) Scrape(ctx context.Context, term string, limits Limits) ([]*store.SourceRecord, error) {
	limits = limits.defaults()
	deadline := time.Now().Add(limits.MaxDuration)
	log := v.logger.With("scraper", "video", "term", term)

	target := strings.ReplaceAll(v.searchURL, "{term}", url.QueryEscape(term))

	var page browser.Page
	err := v.policy.Do(ctx, "video open "+term, func(ctx context.Context) error {
		p, err := v.session.Open(ctx, target)
		if err != nil {
			return &TransientError{Target: target, Cause: err}
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer page.Close()

	dedup := make(seen)
	var records []*store.SourceRecord

	for scroll := 0; scroll < limits.MaxScrolls; scroll++ {
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}

		cards, err := page.Elements(ctx, v.selectors.Card)
		if err != nil {
			// A selector failure mid-scroll keeps what was already
			// collected; the page may still be rendering.
			log.Warn("card query failed", "scroll", scroll, "error", err)
			break
		}

		added := 0
		for _, card := range cards {
			rec := v.parseCard(card)
			if rec == nil || !dedup.add(rec.ExternalID) {
				continue
			}
			records = append(records, rec)
			added++
			if len(records) >= limits.MaxItems {
				log.Info("scrape complete", "records", len(records), "reason", "max_items")
				return records, nil
			}
		}

		// No new cards after a scroll means the feed is exhausted.
		if scroll > 0 && added == 0 {
			break
		}

		if err := page.ScrollToBottom(ctx); err != nil {
			log.Warn("scroll failed", "scroll", scroll, "error", err)
			break
		}
		sleep(ctx, limits.PageDelay)
	}

	log.Info("scrape complete", "records", len(records))
	return records, nil
}

// parseCard turns one post card into a record. Cards missing a link
// (no stable external ID) are dropped.
func (v *VideoScraper) parseCard(card browser.Element) *store.SourceRecord {
	postURL := elementAttr(card, v.selectors.Link, "href")
	if postURL == "" {
		return nil
	}

	caption := elementText(card, v.selectors.Caption)
	if caption == "" {
		// Fall back to the card's own text; better a noisy caption
		// than a silent record.
		caption, _ = card.Text()
	}

	return &store.SourceRecord{
		ExternalID: externalIDFromURL(postURL),
		Kind:       store.KindVideo,
		URL:        postURL,
		Author:     elementText(card, v.selectors.Author),
		Likes:      parseCount(elementText(card, v.selectors.Likes)),
		Comments:   parseCount(elementText(card, v.selectors.Comment)),
		RawText:    ticker.Normalize(caption),
	}
}

// externalIDFromURL uses the last path segment as the stable ID, the
// usual "/video/7312..." shape. Falls back to the whole URL.
func externalIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return raw
	}
	return fmt.Sprintf("%s:%s", u.Hostname(), last)
}

// elementText finds a child by selector and returns its trimmed text.
func elementText(el browser.Element, selector string) string {
	sub, err := el.Find(selector)
	if err != nil || sub == nil {
		return ""
	}
	text, err := sub.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// elementAttr finds a child by selector and returns an attribute.
func elementAttr(el browser.Element, selector, attr string) string {
	sub, err := el.Find(selector)
	if err != nil || sub == nil {
		return ""
	}
	v, err := sub.Attr(attr)
	if err != nil {
		return ""
	}
	return v
}
