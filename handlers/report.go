package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/database"
)

const maxReportListLimit = 500

// ReportHandler lists cataloged reports and serves stored report documents.
type ReportHandler struct {
	DB        *sql.DB
	Artifacts *artifacts.Store
}

// ListReports handles GET /reports?sort=&limit=&source=.
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sortOrder := q.Get("sort")
	if sortOrder == "" {
		sortOrder = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(sortOrder) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_sort", "Unsupported sort order: "+sortOrder)
		return
	}

	var limit uint64
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 {
			WriteAPIError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportListLimit)
	}

	reports, err := database.ListReports(h.DB, database.ListReportsOptions{
		Sort:   sortOrder,
		Limit:  limit,
		Source: q.Get("source"),
	})
	if err != nil {
		writeServiceError(w, "listing reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports, "count": len(reports)})
}

// GetReport handles GET /reports/{name}.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Artifacts.LoadReport(chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, "loading report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
