package domain

import "time"

// Post represents a single social-media post fetched for a dataset.
// Posts carry no stable external ID; within a dataset a post is identified
// by its row position.
type Post struct {
	Title        string    `json:"title"`
	Score        int       `json:"score"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
	CommentCount int       `json:"num_comments"`
	Body         string    `json:"selftext"`
}

// PostPayload is the denormalized copy of a post stored next to its vector
// in the index. It exists so retrieval can render results without joining
// back to the dataset file; the dataset remains the source of truth.
type PostPayload struct {
	Title  string `json:"title"`
	Body   string `json:"selftext"`
	Score  int    `json:"score"`
	Source string `json:"source"`
}

// PayloadSource is the constant source tag written into every payload.
const PayloadSource = "Reddit"
