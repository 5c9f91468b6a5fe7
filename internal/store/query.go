package store

import (
	"context"
	"fmt"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern that matches s literally anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// buildDreamQuery turns options into one parameterized SELECT. Filters are
// ANDed; the tags filter is an OR group matching the quoted JSON form of
// each tag inside the serialized column, so it is a substring match on
// that text rather than a structural JSON check.
func buildDreamQuery(opts FetchOptions) (string, []any, error) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT " + dreamColumns + " FROM dreams WHERE 1=1")

	if opts.SearchQuery != "" {
		b.WriteString(` AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		pattern := containsPattern(opts.SearchQuery)
		args = append(args, pattern, pattern)
	}

	if f := opts.DateFilter; f != nil {
		switch {
		case f.On != "":
			b.WriteString(" AND date = ?")
			args = append(args, f.On)
		case f.StartDate != "" && f.EndDate != "":
			b.WriteString(" AND date BETWEEN ? AND ?")
			args = append(args, f.StartDate, f.EndDate)
		case f.StartDate != "":
			b.WriteString(" AND date >= ?")
			args = append(args, f.StartDate)
		case f.EndDate != "":
			b.WriteString(" AND date <= ?")
			args = append(args, f.EndDate)
		}
	}

	if opts.LucidityLevelFilter != "" {
		b.WriteString(" AND lucidityLevel = ?")
		args = append(args, opts.LucidityLevelFilter)
	}

	var tagConditions []string
	for _, tag := range opts.TagsFilter {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		fragment, err := marshalJSON(tag)
		if err != nil {
			return "", nil, fmt.Errorf("%w: tag %q: %v", ErrInvalidQuery, tag, err)
		}
		tagConditions = append(tagConditions, `tags LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(fragment))
	}
	if len(tagConditions) > 0 {
		b.WriteString(" AND (" + strings.Join(tagConditions, " OR ") + ")")
	}

	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = SortByDate
	}
	if sortBy != SortByDate && sortBy != SortByTitle {
		return "", nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, sortBy)
	}

	order := SortOrder(strings.ToUpper(string(opts.SortOrder)))
	if order == "" {
		order = SortDesc
	}
	if order != SortAsc && order != SortDesc {
		return "", nil, fmt.Errorf("%w: unknown sort order %q", ErrInvalidQuery, opts.SortOrder)
	}

	// Column and direction come from the whitelists above, never from input.
	// Title ordering uses SQLite's BINARY collation (case-sensitive).
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", sortBy, order, order)

	return b.String(), args, nil
}

// FetchDreams runs the journal list query described by opts.
func (s *SQLiteStore) FetchDreams(ctx context.Context, opts FetchOptions) ([]DreamEntry, error) {
	query, args, err := buildDreamQuery(opts)
	if err != nil {
		return nil, err
	}

	db, err := s.conn()
	if err != nil {
		return nil, readError("fetch dreams", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, readError("fetch dreams", err)
	}
	defer rows.Close()

	dreams := []DreamEntry{}
	for rows.Next() {
		entry, err := scanDream(rows)
		if err != nil {
			return nil, readError("fetch dreams", fmt.Errorf("failed to scan dream row: %w", err))
		}
		dreams = append(dreams, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("fetch dreams", err)
	}
	return dreams, nil
}
