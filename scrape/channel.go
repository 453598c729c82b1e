package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/mentionwatch/mentionwatch/browser"
	"github.com/mentionwatch/mentionwatch/retry"
	"github.com/mentionwatch/mentionwatch/store"
	"github.com/mentionwatch/mentionwatch/ticker"
)

// ChannelSelectors target a public channel page's message list.
type ChannelSelectors struct {
	Message string `yaml:"message"` // one message bubble
	Text    string `yaml:"text"`    // message body
	MsgID   string `yaml:"msg_id"`  // attribute holding the message ID
	Views   string `yaml:"views"`   // view counter
}

func (c *ChannelSelectors) applyDefaults() {
	if c.Message == "" {
		c.Message = "div.tgme_widget_message"
	}
	if c.Text == "" {
		c.Text = "div.tgme_widget_message_text"
	}
	if c.MsgID == "" {
		c.MsgID = "data-post"
	}
	if c.Views == "" {
		c.Views = "span.tgme_widget_message_views"
	}
}

// TargetStore is the slice of the store the channel scraper needs.
type TargetStore interface {
	ListTargets(ctx context.Context) ([]*store.ChannelTarget, error)
	AddTarget(ctx context.Context, t *store.ChannelTarget) error
	MarkTargetValidated(ctx context.Context, handle string) error
	MarkTargetUnreachable(ctx context.Context, handle, errMsg string) error
	TouchTargetScraped(ctx context.Context, handle string) error
}

// ChannelScraper reads messages from public channel pages. The target
// list lives in the store; discovery appends to it and validation marks
// targets unreachable instead of deleting them, so a flaky channel is
// never silently forgotten.
type ChannelScraper struct {
	session   browser.Session
	targets   TargetStore
	selectors ChannelSelectors
	policy    retry.Policy
	probe     *http.Client
	md        *converter.Converter
	logger    *slog.Logger
}

// NewChannelScraper creates a ChannelScraper backed by the given store.
func NewChannelScraper(session browser.Session, targets TargetStore, sel ChannelSelectors, policy retry.Policy, logger *slog.Logger) *ChannelScraper {
	sel.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	policy.Retryable = Retryable
	return &ChannelScraper{
		session:   session,
		targets:   targets,
		selectors: sel,
		policy:    policy,
		probe:     &http.Client{Timeout: 15 * time.Second},
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		logger: logger,
	}
}

// LoadTargets returns the current target list from the store.
func (c *ChannelScraper) LoadTargets(ctx context.Context) ([]*store.ChannelTarget, error) {
	return c.targets.ListTargets(ctx)
}

// Discover appends newly found targets. Handles already on the list
// are left untouched, so re-running discovery never resets a target's
// validation state.
func (c *ChannelScraper) Discover(ctx context.Context, found []*store.ChannelTarget) (int, error) {
	before, err := c.targets.ListTargets(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(before))
	for _, t := range before {
		known[t.Handle] = true
	}

	added := 0
	for _, t := range found {
		if known[t.Handle] {
			continue
		}
		if err := c.targets.AddTarget(ctx, t); err != nil {
			return added, fmt.Errorf("scrape: add target %s: %w", t.Handle, err)
		}
		known[t.Handle] = true
		added++
	}
	if added > 0 {
		c.logger.Info("targets discovered", "added", added, "total", len(known))
	}
	return added, nil
}

// Validate probes each target's URL for reachability. Unreachable
// targets are marked with the probe error and skipped by Scrape until
// a later validation pass clears them.
func (c *ChannelScraper) Validate(ctx context.Context, targets []*store.ChannelTarget) error {
	for _, t := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.probeTarget(ctx, t.URL); err != nil {
			c.logger.Warn("target unreachable", "handle", t.Handle, "error", err)
			if merr := c.targets.MarkTargetUnreachable(ctx, t.Handle, err.Error()); merr != nil {
				return merr
			}
			continue
		}
		if err := c.targets.MarkTargetValidated(ctx, t.Handle); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChannelScraper) probeTarget(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("scrape: target has no url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("scrape: probe %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Scrape visits every validated target and collects its visible
// messages. One failing target is marked unreachable and the rest
// continue; the error return is reserved for store failures.
func (c *ChannelScraper) Scrape(ctx context.Context, limits Limits) ([]*store.SourceRecord, error) {
	limits = limits.defaults()
	deadline := time.Now().Add(limits.MaxDuration)

	targets, err := c.targets.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	dedup := make(seen)
	var records []*store.SourceRecord

	for _, t := range targets {
		if t.Unreachable {
			continue
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		if len(records) >= limits.MaxItems {
			break
		}

		recs, err := c.scrapeTarget(ctx, t, limits, dedup)
		if err != nil {
			c.logger.Warn("target scrape failed", "handle", t.Handle, "error", err)
			if merr := c.targets.MarkTargetUnreachable(ctx, t.Handle, err.Error()); merr != nil {
				return records, merr
			}
			continue
		}
		records = append(records, recs...)
		if err := c.targets.TouchTargetScraped(ctx, t.Handle); err != nil {
			return records, err
		}
		sleep(ctx, limits.PageDelay)
	}

	if len(records) > limits.MaxItems {
		records = records[:limits.MaxItems]
	}
	c.logger.Info("channel scrape complete", "targets", len(targets), "records", len(records))
	return records, nil
}

// scrapeTarget reads one channel page. Retried under the shared policy.
func (c *ChannelScraper) scrapeTarget(ctx context.Context, t *store.ChannelTarget, limits Limits, dedup seen) ([]*store.SourceRecord, error) {
	var records []*store.SourceRecord

	err := c.policy.Do(ctx, "channel "+t.Handle, func(ctx context.Context) error {
		page, err := c.session.Open(ctx, t.URL)
		if err != nil {
			return &TransientError{Target: t.Handle, Cause: err}
		}
		defer page.Close()

		msgs, err := page.Elements(ctx, c.selectors.Message)
		if err != nil {
			return &TransientError{Target: t.Handle, Cause: err}
		}
		if len(msgs) == 0 {
			// A reachable page with zero messages usually means a
			// private channel or an interstitial.
			return &PermanentError{Target: t.Handle, Cause: fmt.Errorf("no messages visible")}
		}

		records = records[:0]
		for _, msg := range msgs {
			rec := c.parseMessage(t, msg)
			if rec == nil || !dedup.add(rec.ExternalID) {
				continue
			}
			records = append(records, rec)
			if len(records) >= limits.MaxItems {
				break
			}
		}
		return nil
	})
	return records, err
}

// parseMessage turns one message bubble into a record. The body is
// kept as markdown so links and formatting survive into the audit
// trail; plain text is the fallback when conversion fails.
func (c *ChannelScraper) parseMessage(t *store.ChannelTarget, msg browser.Element) *store.SourceRecord {
	msgID, err := msg.Attr(c.selectors.MsgID)
	if err != nil || msgID == "" {
		return nil
	}

	raw := ticker.Normalize(elementText(msg, c.selectors.Text))
	if body, ferr := msg.Find(c.selectors.Text); ferr == nil && body != nil {
		if html, herr := body.HTML(); herr == nil {
			if md, cerr := c.md.ConvertString(html); cerr == nil && strings.TrimSpace(md) != "" {
				raw = strings.TrimSpace(md)
			}
		}
	}
	if raw == "" {
		return nil
	}

	return &store.SourceRecord{
		ExternalID: "msg:" + msgID,
		Kind:       store.KindChannelMessage,
		URL:        t.URL,
		Author:     t.Handle,
		Shares:     parseCount(elementText(msg, c.selectors.Views)),
		RawText:    raw,
	}
}
