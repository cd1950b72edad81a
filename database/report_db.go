package database

import (
	"database/sql"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/facette/natsort"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// ReportSummary is one catalog row with its relabel count.
type ReportSummary struct {
	ID              int64   `json:"id"`
	ResultsPath     string  `json:"results_path"`
	SourceName      string  `json:"source_name"`
	FPS             float64 `json:"fps"`
	Duration        float64 `json:"duration"`
	DetectionCount  int     `json:"detection_count"`
	UniqueFaceCount int     `json:"unique_face_count"`
	RelabelCount    int     `json:"relabel_count"`
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
}

type ListReportsOptions struct {
	Sort   string
	Limit  uint64
	Source string // substring match on the uploaded file name
}

// ListReports queries the report catalog.
func ListReports(db *sql.DB, opts ListReportsOptions) ([]ReportSummary, error) {
	if !IsValidSortOrder(opts.Sort) {
		opts.Sort = DefaultSortOrder
	}

	queryBuilder := psql.Select(
		"r.id", "r.results_path", "r.source_name", "r.fps", "r.duration",
		"r.detection_count", "r.unique_face_count", "COUNT(f.id)", "r.created_at", "r.updated_at",
	).
		From("reports r").
		LeftJoin("face_relabels f ON f.report_id = r.id").
		GroupBy("r.id")

	if opts.Source != "" {
		queryBuilder = queryBuilder.Where(sq.Like{"r.source_name": "%" + opts.Source + "%"})
	}

	switch opts.Sort {
	case SortCreatedAsc:
		queryBuilder = queryBuilder.OrderBy("r.created_at ASC", "r.id ASC")
	case SortNameNat:
		// natural order is applied below, limit too
		queryBuilder = queryBuilder.OrderBy("r.id ASC")
	default:
		queryBuilder = queryBuilder.OrderBy("r.created_at DESC", "r.id DESC")
	}
	if opts.Limit > 0 && opts.Sort != SortNameNat {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ListReports: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ListReports query: %w", err)
	}
	defer rows.Close()

	summaries := []ReportSummary{}
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.ResultsPath, &s.SourceName, &s.FPS, &s.Duration,
			&s.DetectionCount, &s.UniqueFaceCount, &s.RelabelCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report rows: %w", err)
	}

	if opts.Sort == SortNameNat {
		sort.SliceStable(summaries, func(i, j int) bool {
			return natsort.Compare(summaries[i].SourceName, summaries[j].SourceName)
		})
		if opts.Limit > 0 && uint64(len(summaries)) > opts.Limit {
			summaries = summaries[:opts.Limit]
		}
	}
	return summaries, nil
}
