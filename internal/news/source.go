package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// Article is one headline with optional summary text.
type Article struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Link      string    `json:"link,omitempty"`
	Published time.Time `json:"published"`
	Source    string    `json:"source"`
}

// Text is the scored content of the article.
func (a Article) Text() string {
	return a.Title + " " + a.Summary
}

// Source fetches recent articles for a query.
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]Article, error)
}

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// RSSSource reads an RSS feed. URLTemplate may contain "{query}", which is
// replaced with the escaped query.
type RSSSource struct {
	URLTemplate string
	client      *resty.Client
}

// NewRSSSource creates an RSS source with the given HTTP timeout.
func NewRSSSource(urlTemplate string, timeout time.Duration) *RSSSource {
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetHeader("User-Agent", "smc-engine/1.0 (+news)")
	return &RSSSource{URLTemplate: urlTemplate, client: c}
}

func (s *RSSSource) Name() string { return hostOf(s.URLTemplate) }

func (s *RSSSource) Fetch(ctx context.Context, query string) ([]Article, error) {
	u := strings.ReplaceAll(s.URLTemplate, "{query}", url.QueryEscape(query))
	resp, err := s.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", s.Name(), err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch rss %s: HTTP %d", s.Name(), resp.StatusCode())
	}

	var feed rss
	if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", s.Name(), err)
	}

	out := make([]Article, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		out = append(out, Article{
			Title:     strings.TrimSpace(it.Title),
			Summary:   stripHTML(it.Description),
			Link:      it.Link,
			Published: parsePubDate(it.PubDate),
			Source:    s.Name(),
		})
	}
	return out, nil
}

// HTMLSource scrapes headlines from a page with a CSS selector.
type HTMLSource struct {
	URLTemplate string
	Selector    string
	client      *resty.Client
}

// NewHTMLSource creates a scraping source.
func NewHTMLSource(urlTemplate, selector string, timeout time.Duration) *HTMLSource {
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetHeader("User-Agent", "smc-engine/1.0 (+news)")
	return &HTMLSource{URLTemplate: urlTemplate, Selector: selector, client: c}
}

func (s *HTMLSource) Name() string { return hostOf(s.URLTemplate) }

func (s *HTMLSource) Fetch(ctx context.Context, query string) ([]Article, error) {
	u := strings.ReplaceAll(s.URLTemplate, "{query}", url.QueryEscape(query))
	resp, err := s.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, fmt.Errorf("fetch html %s: %w", s.Name(), err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch html %s: HTTP %d", s.Name(), resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", s.Name(), err)
	}

	var out []Article
	now := time.Now().UTC()
	doc.Find(s.Selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return
		}
		link, _ := sel.Attr("href")
		if link == "" {
			link, _ = sel.Find("a").First().Attr("href")
		}
		out = append(out, Article{Title: title, Link: link, Published: now, Source: s.Name()})
	})
	return out, nil
}

func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.ReplaceAll(raw, "{query}", "q"))
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
