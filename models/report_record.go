package models

// ReportRecord catalogs one processed video and the report file it produced.
// It corresponds to the 'reports' table.
type ReportRecord struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	ResultsPath     string  `gorm:"uniqueIndex;not null" json:"results_path"` // report file name under the reports dir
	SourceName      string  `gorm:"not null;index" json:"source_name"`        // original upload file name
	FPS             float64 `gorm:"not null" json:"fps"`
	Duration        float64 `gorm:"not null" json:"duration"`
	DetectionCount  int     `gorm:"not null" json:"detection_count"`
	UniqueFaceCount int     `gorm:"not null" json:"unique_face_count"`
	CreatedAt       int64   `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt       int64   `gorm:"not null" json:"updated_at"` // Unix timestamp

	Relabels []FaceRelabel `gorm:"foreignKey:ReportID" json:"relabels,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (ReportRecord) TableName() string {
	return "reports"
}
