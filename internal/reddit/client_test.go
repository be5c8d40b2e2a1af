package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mweber/stocklens/internal/domain"
)

const listingJSON = `{
	"data": {
		"after": "",
		"children": [
			{"data": {
				"title": "AAPL earnings beat",
				"score": 142,
				"url": "https://reddit.com/r/stocks/1",
				"created_utc": 1700000000.0,
				"num_comments": 37,
				"selftext": "Earnings came in above expectations."
			}},
			{"data": {
				"title": "Thoughts on Apple?",
				"score": 5,
				"url": "https://reddit.com/r/investing/2",
				"created_utc": 1700000100.0,
				"num_comments": 0,
				"selftext": ""
			}}
		]
	}
}`

func TestNormalizePost(t *testing.T) {
	var resp listingResponse
	if err := json.Unmarshal([]byte(listingJSON), &resp); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if len(resp.Data.Children) != 2 {
		t.Fatalf("children count = %d, want 2", len(resp.Data.Children))
	}

	post := normalizePost(resp.Data.Children[0].Data)

	if post.Title != "AAPL earnings beat" {
		t.Errorf("Title = %q", post.Title)
	}
	if post.Score != 142 {
		t.Errorf("Score = %d, want 142", post.Score)
	}
	if post.CommentCount != 37 {
		t.Errorf("CommentCount = %d, want 37", post.CommentCount)
	}
	want := time.Unix(1700000000, 0).UTC()
	if !post.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", post.CreatedAt, want)
	}
	if post.Body != "Earnings came in above expectations." {
		t.Errorf("Body = %q", post.Body)
	}
}

// newTestClient points a client at a fake Reddit API.
func newTestClient(srv *httptest.Server) *Client {
	return NewClient(&Config{
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "test-agent",
		AuthBaseURL:  srv.URL,
		APIBaseURL:   srv.URL,
	})
}

func fakeRedditServer(t *testing.T, listing string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("token request missing basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		if want := "/r/stocks+investing+wallstreetbets/search"; r.URL.Path != want {
			t.Errorf("search path = %q, want %q", r.URL.Path, want)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("sort"); got != "new" {
			t.Errorf("sort = %q, want new", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, listing)
	})
	return httptest.NewServer(mux)
}

func TestSearchPosts(t *testing.T) {
	srv := fakeRedditServer(t, listingJSON)
	defer srv.Close()

	posts, err := newTestClient(srv).SearchPosts(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatalf("SearchPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	if posts[1].Title != "Thoughts on Apple?" {
		t.Errorf("posts[1].Title = %q", posts[1].Title)
	}
}

func TestSearchPostsRespectsLimit(t *testing.T) {
	srv := fakeRedditServer(t, listingJSON)
	defer srv.Close()

	posts, err := newTestClient(srv).SearchPosts(context.Background(), "AAPL", 1)
	if err != nil {
		t.Fatalf("SearchPosts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
}

func TestSearchPostsEmptyListing(t *testing.T) {
	srv := fakeRedditServer(t, `{"data":{"after":"","children":[]}}`)
	defer srv.Close()

	_, err := newTestClient(srv).SearchPosts(context.Background(), "NOSUCH", 10)
	if !errors.Is(err, domain.ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
}

func TestSearchPostsInvalidLimit(t *testing.T) {
	c := NewClient(&Config{UserAgent: "test-agent"})
	if _, err := c.SearchPosts(context.Background(), "AAPL", 0); err == nil {
		t.Fatal("expected error for limit 0")
	}
}
