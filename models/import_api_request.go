package models

import "time"

// ImportAPIRequest is an audit row for one batch fetched from the external
// reporting API while running an import job.
type ImportAPIRequest struct {
	ID             uint64    `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	JobID          string    `json:"job_id" gorm:"column:job_id;type:varchar(36);not null;index"`
	ReportType     string    `json:"report_type" gorm:"column:report_type;type:varchar(32);not null"`
	Offset         int64     `json:"offset" gorm:"column:offset;not null;default:0"`
	RowsReturned   int       `json:"rows_returned" gorm:"column:rows_returned;not null;default:0"`
	ResponseTimeMs int       `json:"response_time_ms" gorm:"column:response_time_ms;not null;default:0"`
	ErrorMessage   *string   `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ImportAPIRequest) TableName() string { return "import_api_requests" }
