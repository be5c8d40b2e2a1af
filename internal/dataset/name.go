package dataset

import (
	"fmt"
	"strings"
	"time"
)

// nameTimeLayout is the timestamp suffix of generated dataset names,
// e.g. "tsla_20250812_143022".
const nameTimeLayout = "20060102_150405"

// GenerateName builds a dataset/collection name from a stock symbol and a
// timestamp. The symbol is lowercased so names double as Qdrant collection
// names.
func GenerateName(symbol string, t time.Time) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(strings.TrimSpace(symbol)), t.Format(nameTimeLayout))
}

// ParseName splits a dataset name back into its uppercased stock symbol and
// creation timestamp.
func ParseName(name string) (string, time.Time, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return "", time.Time{}, fmt.Errorf("invalid dataset name %q", name)
	}

	symbol := strings.ToUpper(strings.Join(parts[:len(parts)-2], "_"))
	ts, err := time.Parse(nameTimeLayout, strings.Join(parts[len(parts)-2:], "_"))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp in dataset name %q: %w", name, err)
	}
	return symbol, ts, nil
}
