package index

import (
	"database/sql"
	"fmt"
	"strings"
)

const defaultSearchLimit = 20

// searchTerms splits a free-text query into lowercase terms. Every term must
// match for a note to be returned.
func searchTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan search hit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
