package models

import "time"

// MaintenanceType distinguishes planned from unplanned work
type MaintenanceType string

const (
	MaintenanceTypePreventive  MaintenanceType = "PREVENTIVE"
	MaintenanceTypeCorrective  MaintenanceType = "CORRECTIVE"
	MaintenanceTypeInspection  MaintenanceType = "INSPECTION"
	MaintenanceTypeCalibration MaintenanceType = "CALIBRATION"
)

// MaintenanceEvent is a persisted maintenance fact for a machine.
// EventID is the domain-unique business key.
type MaintenanceEvent struct {
	ID            string          `json:"id" db:"id"`
	EventID       string          `json:"event_id" db:"event_id"`
	DocumentID    string          `json:"document_id" db:"document_id"`
	Site          string          `json:"site" db:"site"`
	MachineID     string          `json:"machine_id" db:"machine_id"`
	MachineName   *string         `json:"machine_name,omitempty" db:"machine_name"`
	EventType     MaintenanceType `json:"event_type" db:"event_type"`
	Description   *string         `json:"description,omitempty" db:"description"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	DowntimeHours *float64        `json:"downtime_hours,omitempty" db:"downtime_hours"`
	Technician    *string         `json:"technician,omitempty" db:"technician"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// MaintenanceEventWithDocument embeds the source document reference
type MaintenanceEventWithDocument struct {
	MaintenanceEvent
	Document DocumentRef `json:"document" db:"document"`
}
