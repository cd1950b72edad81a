package repository

import (
	"github.com/camden-git/vidfaces/models"
)

// ReportRepositoryInterface defines the methods for report catalog operations
type ReportRepositoryInterface interface {
	Create(record *models.ReportRecord) error
	GetByResultsPath(resultsPath string) (*models.ReportRecord, error)
	RecordRelabel(resultsPath string, relabel *models.FaceRelabel) error
	ListRelabels(resultsPath string) ([]models.FaceRelabel, error)
	Delete(resultsPath string) error
}

var _ ReportRepositoryInterface = (*ReportRepository)(nil)
