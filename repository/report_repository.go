package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/vidfaces/models"
	"gorm.io/gorm"
)

// ReportRepository handles catalog rows for processed videos and their relabel history
type ReportRepository struct {
	DB *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{DB: db}
}

// Create inserts a catalog row for a freshly written report
func (r *ReportRepository) Create(record *models.ReportRecord) error {
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = now
	}

	if err := r.DB.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create report record %s: %w", record.ResultsPath, err)
	}
	return nil
}

// GetByResultsPath retrieves a report row by its file name, preloading relabels
func (r *ReportRepository) GetByResultsPath(resultsPath string) (*models.ReportRecord, error) {
	var record models.ReportRecord
	err := r.DB.Preload("Relabels", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("results_path = ?", resultsPath).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get report by path %s: %w", resultsPath, err)
	}
	return &record, nil
}

// RecordRelabel appends a relabel entry and bumps the report's UpdatedAt in one transaction
func (r *ReportRepository) RecordRelabel(resultsPath string, relabel *models.FaceRelabel) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var record models.ReportRecord
		if err := tx.Where("results_path = ?", resultsPath).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to find report %s: %w", resultsPath, err)
		}

		now := time.Now().Unix()
		relabel.ReportID = record.ID
		if relabel.CreatedAt == 0 {
			relabel.CreatedAt = now
		}
		if err := tx.Create(relabel).Error; err != nil {
			return fmt.Errorf("failed to record relabel for face %s: %w", relabel.FaceID, err)
		}

		if err := tx.Model(&models.ReportRecord{}).Where("id = ?", record.ID).Update("updated_at", now).Error; err != nil {
			return fmt.Errorf("failed to touch report %s: %w", resultsPath, err)
		}
		return nil
	})
}

// ListRelabels returns the relabel history of a report, oldest first
func (r *ReportRepository) ListRelabels(resultsPath string) ([]models.FaceRelabel, error) {
	var relabels []models.FaceRelabel
	err := r.DB.
		Select("face_relabels.*").
		Joins("JOIN reports ON reports.id = face_relabels.report_id").
		Where("reports.results_path = ?", resultsPath).
		Order("face_relabels.id ASC").
		Find(&relabels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list relabels for %s: %w", resultsPath, err)
	}
	return relabels, nil
}

// Delete removes a report row and its relabel history
func (r *ReportRepository) Delete(resultsPath string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var record models.ReportRecord
		if err := tx.Where("results_path = ?", resultsPath).First(&record).Error; err != nil {
			return err
		}
		if err := tx.Where("report_id = ?", record.ID).Delete(&models.FaceRelabel{}).Error; err != nil {
			return fmt.Errorf("failed to delete relabels for %s: %w", resultsPath, err)
		}
		if err := tx.Delete(&models.ReportRecord{}, record.ID).Error; err != nil {
			return fmt.Errorf("failed to delete report %s: %w", resultsPath, err)
		}
		return nil
	})
}
