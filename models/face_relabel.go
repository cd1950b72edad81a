package models

// FaceRelabel records one rename of a detected face inside a report.
type FaceRelabel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ReportID  uint   `gorm:"not null;index" json:"report_id"`
	FaceID    string `gorm:"not null;index" json:"face_id"`
	OldName   string `json:"old_name"`
	NewName   string `gorm:"not null" json:"new_name"`
	Updated   int    `gorm:"not null" json:"updated"` // detections changed
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}

func (FaceRelabel) TableName() string {
	return "face_relabels"
}
