package websearch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

const (
	duckDuckGoScore  = 0.7
	duckDuckGoSuffix = " education curriculum course"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DuckDuckGo scrapes the lite HTML interface. It needs no key and is paced
// by the shared duckduckgo limiter (1 QPS by default).
type DuckDuckGo struct {
	opts     ProviderOptions
	httpw    *circuitbreaker.HTTPWrapper
	conv     *md.Converter
	attempts int
	delay    time.Duration
}

func NewDuckDuckGo(opts ProviderOptions) *DuckDuckGo {
	o := opts.withDefaults("https://lite.duckduckgo.com/lite/")
	return &DuckDuckGo{
		opts:     o,
		httpw:    newWrapper("duckduckgo", o),
		conv:     md.NewConverter("", true, nil),
		attempts: 3,
		delay:    time.Second,
	}
}

func (d *DuckDuckGo) Name() string { return ProviderDuckDuckGo }

func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) (bool, []models.SearchResult) {
	log := d.opts.Logger
	if strings.TrimSpace(query) == "" {
		return false, nil
	}
	form := url.Values{}
	form.Set("q", query+duckDuckGoSuffix)

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, d.opts.Endpoint)
	defer span.End()

	var resp *http.Response
	delay := d.delay
	for attempt := 1; ; attempt++ {
		if err := d.opts.Limiters.Wait(ctx, ProviderDuckDuckGo); err != nil {
			return false, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.Endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return false, nil
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		tracing.InjectTraceparent(ctx, req)

		resp, err = d.httpw.Do(req)
		if err != nil {
			log.Warn("DuckDuckGo search failed", zap.String("query", query), zap.Error(err))
			return false, nil
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= d.attempts {
			break
		}
		resp.Body.Close()
		if delay, err = backoff(ctx, delay); err != nil {
			return false, nil
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("DuckDuckGo search failed", zap.String("query", query), zap.Int("status", resp.StatusCode))
		return false, nil
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		log.Warn("DuckDuckGo page unreadable", zap.Error(err))
		return false, nil
	}
	out := limitResults(d.parse(doc), max)
	log.Info("DuckDuckGo search completed", zap.String("query", query), zap.Int("results", len(out)))
	return true, out
}

// parse pairs result links with snippet cells by position.
func (d *DuckDuckGo) parse(doc *goquery.Document) []models.SearchResult {
	var snippets []string
	doc.Find("td.result-snippet").Each(func(_ int, s *goquery.Selection) {
		snippets = append(snippets, d.text(s))
	})

	var out []models.SearchResult
	doc.Find("a.result-link").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link := resolveLink(href)
		title := strings.TrimSpace(s.Text())
		if link == "" || title == "" {
			return
		}
		r := models.SearchResult{
			Title:          title,
			URL:            link,
			Provider:       ProviderDuckDuckGo,
			RelevanceScore: duckDuckGoScore,
		}
		if i < len(snippets) {
			r.Snippet = snippet(snippets[i])
		}
		out = append(out, r)
	})
	return out
}

// text renders a snippet cell to plain text.
func (d *DuckDuckGo) text(s *goquery.Selection) string {
	html, err := s.Html()
	if err != nil {
		return strings.TrimSpace(s.Text())
	}
	txt, err := d.conv.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(s.Text())
	}
	txt = strings.NewReplacer("**", "", "__", "", "\\", "").Replace(txt)
	return strings.Join(strings.Fields(txt), " ")
}

// resolveLink unwraps DuckDuckGo redirect links (/l/?uddg=...).
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") || u.Host == "" {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	return href
}
