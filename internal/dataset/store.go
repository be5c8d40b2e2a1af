package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mweber/stocklens/internal/domain"
)

// csvHeader is the column layout shared with the original collection
// scripts. Order matters: embeddings are aligned to these rows by position.
var csvHeader = []string{"title", "score", "url", "created_utc", "num_comments", "selftext"}

// Store persists datasets as name-addressed CSV files with a parallel NPY
// embedding matrix per dataset.
type Store struct {
	csvDir string
	npyDir string
}

// NewStore creates a dataset store rooted at the given directories,
// creating them if needed.
func NewStore(csvDir, npyDir string) (*Store, error) {
	for _, dir := range []string{csvDir, npyDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return &Store{csvDir: csvDir, npyDir: npyDir}, nil
}

// CSVPath returns the on-disk path of a dataset's record file.
func (s *Store) CSVPath(name string) string {
	return filepath.Join(s.csvDir, name+".csv")
}

// NPYPath returns the on-disk path of a dataset's embedding file.
func (s *Store) NPYPath(name string) string {
	return filepath.Join(s.npyDir, name+".npy")
}

// WriteRecords serializes posts to the dataset's CSV file, replacing any
// previous content under the same name.
func (s *Store) WriteRecords(name string, posts []domain.Post) error {
	f, err := os.Create(s.CSVPath(name))
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, p := range posts {
		row := []string{
			p.Title,
			strconv.Itoa(p.Score),
			p.URL,
			strconv.FormatInt(p.CreatedAt.Unix(), 10),
			strconv.Itoa(p.CommentCount),
			p.Body,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush dataset file: %w", err)
	}
	return nil
}

// ReadRecords loads the posts of a named dataset. A missing file maps to
// domain.ErrNotFound.
func (s *Store) ReadRecords(name string) ([]domain.Post, error) {
	f, err := os.Open(s.CSVPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset file: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Post{}, nil
	}

	// Map columns through the header so files with reordered columns
	// still load.
	idx := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		idx[strings.TrimSpace(col)] = i
	}

	posts := make([]domain.Post, 0, len(rows)-1)
	for _, row := range rows[1:] {
		posts = append(posts, domain.Post{
			Title:        field(row, idx, "title"),
			Score:        intField(row, idx, "score"),
			URL:          field(row, idx, "url"),
			CreatedAt:    time.Unix(int64(intField(row, idx, "created_utc")), 0).UTC(),
			CommentCount: intField(row, idx, "num_comments"),
			Body:         field(row, idx, "selftext"),
		})
	}
	return posts, nil
}

// WriteEmbeddings persists the embedding matrix for a dataset. All rows
// must share one dimension.
func (s *Store) WriteEmbeddings(name string, vectors [][]float32) error {
	return writeNPY(s.NPYPath(name), vectors)
}

// ReadEmbeddings loads the embedding matrix for a dataset. A missing file
// maps to domain.ErrNotFound.
func (s *Store) ReadEmbeddings(name string) ([][]float32, error) {
	vectors, err := readNPY(s.NPYPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("embeddings %s: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}
	return vectors, nil
}

// List returns the names of all datasets present on disk, derived from the
// CSV directory contents.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.csvDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".csv"))
	}
	return names, nil
}

func field(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func intField(row []string, idx map[string]int, col string) int {
	v := field(row, idx, col)
	if v == "" {
		return 0
	}
	// pandas writes integer columns as floats when NaN is present
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		v = v[:dot]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
