package reddit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mweber/stocklens/internal/domain"
)

const (
	defaultAuthBaseURL = "https://www.reddit.com"
	defaultAPIBaseURL  = "https://oauth.reddit.com"

	// Reddit caps listing pages at 100 entries.
	maxPageSize = 100
)

// Client fetches stock-related posts from the Reddit search API.
type Client struct {
	client     *resty.Client
	clientID   string
	secret     string
	userAgent  string
	subreddits string
	tokenURL   string
	searchURL  string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Config holds credentials and search scope for the Reddit client.
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Subreddits   string // "+"-joined subreddit list, e.g. "stocks+investing"
	AuthBaseURL  string // OAuth token host, defaults to www.reddit.com
	APIBaseURL   string // API host, defaults to oauth.reddit.com
}

// NewClient creates a new Reddit API client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", cfg.UserAgent)

	subreddits := cfg.Subreddits
	if subreddits == "" {
		subreddits = "stocks+investing+wallstreetbets"
	}
	authBase := cfg.AuthBaseURL
	if authBase == "" {
		authBase = defaultAuthBaseURL
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}

	return &Client{
		client:     client,
		clientID:   cfg.ClientID,
		secret:     cfg.ClientSecret,
		userAgent:  cfg.UserAgent,
		subreddits: subreddits,
		tokenURL:   strings.TrimSuffix(authBase, "/") + "/api/v1/access_token",
		searchURL:  fmt.Sprintf("%s/r/%s/search", strings.TrimSuffix(apiBase, "/"), subreddits),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
}

// token returns a valid application-only access token, requesting a new one
// when the cached token is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	var resp tokenResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.secret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&resp).
		Post(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("failed to request reddit token: %w", err)
	}

	if httpResp.StatusCode() != 200 || resp.AccessToken == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("reddit token error: %s", resp.Error)
		}
		return "", fmt.Errorf("reddit token error: status %d", httpResp.StatusCode())
	}

	c.accessToken = resp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// listingResponse mirrors the subset of the Reddit listing envelope we read.
type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	URL         string  `json:"url"`
	CreatedUTC  float64 `json:"created_utc"`
	NumComments int     `json:"num_comments"`
	Selftext    string  `json:"selftext"`
}

// SearchPosts searches the configured subreddits for posts matching keyword,
// newest first, up to limit records. Zero matches is an error, not an empty
// success.
func (c *Client) SearchPosts(ctx context.Context, keyword string, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	posts := make([]domain.Post, 0, limit)
	after := ""
	for len(posts) < limit {
		pageSize := limit - len(posts)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		params := map[string]string{
			"q":           keyword,
			"sort":        "new",
			"limit":       fmt.Sprintf("%d", pageSize),
			"restrict_sr": "true",
		}
		if after != "" {
			params["after"] = after
		}

		var resp listingResponse
		httpResp, err := c.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(params).
			SetResult(&resp).
			Get(c.searchURL)
		if err != nil {
			return nil, fmt.Errorf("failed to search reddit: %w", err)
		}
		if httpResp.StatusCode() != 200 {
			return nil, fmt.Errorf("reddit search error: status %d", httpResp.StatusCode())
		}

		if len(resp.Data.Children) == 0 {
			break
		}

		for _, child := range resp.Data.Children {
			posts = append(posts, normalizePost(child.Data))
			if len(posts) == limit {
				break
			}
		}

		if resp.Data.After == "" {
			break
		}
		after = resp.Data.After
	}

	if len(posts) == 0 {
		return nil, fmt.Errorf("keyword %q: %w", keyword, domain.ErrEmptyResult)
	}

	return posts, nil
}

// normalizePost flattens a Reddit submission into a Post record.
func normalizePost(d postData) domain.Post {
	return domain.Post{
		Title:        d.Title,
		Score:        d.Score,
		URL:          d.URL,
		CreatedAt:    time.Unix(int64(d.CreatedUTC), 0).UTC(),
		CommentCount: d.NumComments,
		Body:         d.Selftext,
	}
}
