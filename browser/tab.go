package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// tab adapts a Rod page to the Page interface.
type tab struct {
	page *rod.Page
	url  string
}

// openTab creates a stealth tab, navigates it, and waits for load.
// Navigation and load wait share one timeout so a hung page cannot
// stall the scraper past its budget.
func openTab(ctx context.Context, b *rod.Browser, pageURL string, timeout time.Duration, log *slog.Logger) (Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &tab{page: page, url: pageURL}, nil
}

func (t *tab) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := t.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &node{el: el})
	}
	return out, nil
}

func (t *tab) ScrollToBottom(ctx context.Context) error {
	_, err := t.page.Context(ctx).Eval(`() => {
		window.scrollTo(0, document.body.scrollHeight);
		return document.body.scrollHeight;
	}`)
	if err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

func (t *tab) HTML(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (t *tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}

// node adapts a Rod element to the Element interface.
type node struct {
	el *rod.Element
}

func (n *node) Text() (string, error) {
	return n.el.Text()
}

func (n *node) Attr(name string) (string, error) {
	v, err := n.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (n *node) HTML() (string, error) {
	return n.el.HTML()
}

func (n *node) Find(selector string) (Element, error) {
	has, el, err := n.el.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return &node{el: el}, nil
}
