package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const userAgent = "BizPortal-SignalPoller/1.0"

// Posting is a normalised job posting from an ATS board.
type Posting struct {
	ExternalID  string
	Title       string
	Location    string
	URL         string
	Description string
	PostedAt    *time.Time
}

// Source fetches the open postings of one board.
type Source interface {
	Name() string
	Fetch(ctx context.Context, slug string) ([]Posting, error)
}

type fetcher struct {
	hc      *http.Client
	limiter *HostLimiter
	baseURL string
}

func (f fetcher) getJSON(ctx context.Context, rawURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
		return err
	}
	res, err := f.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(target)
}

// ============================================================================
// LEVER
// ============================================================================

// DefaultLeverURL is the public postings API.
const DefaultLeverURL = "https://api.lever.co"

// Lever reads api.lever.co/v0/postings/<slug>?mode=json.
type Lever struct {
	fetcher
}

// NewLever builds a Lever source. An empty baseURL uses DefaultLeverURL.
func NewLever(hc *http.Client, limiter *HostLimiter, baseURL string) *Lever {
	if baseURL == "" {
		baseURL = DefaultLeverURL
	}
	return &Lever{fetcher{hc: hc, limiter: limiter, baseURL: strings.TrimRight(baseURL, "/")}}
}

func (l *Lever) Name() string { return "lever" }

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HostedURL  string `json:"hostedUrl"`
	CreatedAt  int64  `json:"createdAt"`
	Categories struct {
		Location string `json:"location"`
	} `json:"categories"`
	DescriptionPlain string `json:"descriptionPlain"`
	Description      string `json:"description"`
}

// Fetch lists a company's postings.
func (l *Lever) Fetch(ctx context.Context, slug string) ([]Posting, error) {
	apiURL := fmt.Sprintf("%s/v0/postings/%s?mode=json", l.baseURL, url.PathEscape(slug))
	var postings []leverPosting
	if err := l.getJSON(ctx, apiURL, &postings); err != nil {
		return nil, fmt.Errorf("lever %s: %w", slug, err)
	}
	out := make([]Posting, 0, len(postings))
	for _, p := range postings {
		title := CleanText(p.Text)
		if p.ID == "" || title == "" {
			continue
		}
		desc := CleanText(p.DescriptionPlain)
		if desc == "" {
			desc = HTMLToText(p.Description)
		}
		posting := Posting{
			ExternalID:  fmt.Sprintf("lever:%s:%s", slug, p.ID),
			Title:       title,
			Location:    CleanText(p.Categories.Location),
			URL:         p.HostedURL,
			Description: desc,
		}
		if p.CreatedAt > 0 {
			t := time.UnixMilli(p.CreatedAt).UTC()
			posting.PostedAt = &t
		}
		out = append(out, posting)
	}
	return out, nil
}

// ============================================================================
// GREENHOUSE
// ============================================================================

// DefaultGreenhouseURL is the public job board API.
const DefaultGreenhouseURL = "https://boards-api.greenhouse.io"

// Greenhouse reads boards-api.greenhouse.io/v1/boards/<slug>/jobs?content=true.
type Greenhouse struct {
	fetcher
}

// NewGreenhouse builds a Greenhouse source. An empty baseURL uses DefaultGreenhouseURL.
func NewGreenhouse(hc *http.Client, limiter *HostLimiter, baseURL string) *Greenhouse {
	if baseURL == "" {
		baseURL = DefaultGreenhouseURL
	}
	return &Greenhouse{fetcher{hc: hc, limiter: limiter, baseURL: strings.TrimRight(baseURL, "/")}}
}

func (g *Greenhouse) Name() string { return "greenhouse" }

type greenhouseBoard struct {
	Jobs []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		AbsoluteURL string `json:"absolute_url"`
		UpdatedAt   string `json:"updated_at"`
		Location    struct {
			Name string `json:"name"`
		} `json:"location"`
		Content string `json:"content"`
	} `json:"jobs"`
}

// Fetch lists a board's jobs with their content.
func (g *Greenhouse) Fetch(ctx context.Context, slug string) ([]Posting, error) {
	apiURL := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", g.baseURL, url.PathEscape(slug))
	var board greenhouseBoard
	if err := g.getJSON(ctx, apiURL, &board); err != nil {
		return nil, fmt.Errorf("greenhouse %s: %w", slug, err)
	}
	out := make([]Posting, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		title := CleanText(j.Title)
		if j.ID == 0 || title == "" {
			continue
		}
		posting := Posting{
			ExternalID:  "greenhouse:" + slug + ":" + strconv.FormatInt(j.ID, 10),
			Title:       title,
			Location:    CleanText(j.Location.Name),
			URL:         j.AbsoluteURL,
			Description: HTMLToText(j.Content),
		}
		if t, err := time.Parse(time.RFC3339, j.UpdatedAt); err == nil {
			t = t.UTC()
			posting.PostedAt = &t
		}
		out = append(out, posting)
	}
	return out, nil
}
