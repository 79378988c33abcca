package models

import (
	"time"
)

type ResourceType string

const (
	ResourceTypeRoom      ResourceType = "room"
	ResourceTypeEquipment ResourceType = "equipment"
	ResourceTypeVehicle   ResourceType = "vehicle"
	ResourceTypeOther     ResourceType = "other"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypeRoom, ResourceTypeEquipment, ResourceTypeVehicle, ResourceTypeOther:
		return true
	}
	return false
}

type ResourceCategory string

const (
	ResourceCategoryAudioVisual ResourceCategory = "audio_visual"
	ResourceCategoryComputing   ResourceCategory = "computing"
	ResourceCategoryFurniture   ResourceCategory = "furniture"
	ResourceCategorySports      ResourceCategory = "sports"
	ResourceCategoryLab         ResourceCategory = "lab"
	ResourceCategoryOther       ResourceCategory = "other"
)

func (c ResourceCategory) Valid() bool {
	switch c {
	case ResourceCategoryAudioVisual, ResourceCategoryComputing, ResourceCategoryFurniture,
		ResourceCategorySports, ResourceCategoryLab, ResourceCategoryOther:
		return true
	}
	return false
}

type MaintenanceStatus string

const (
	MaintenanceOperational MaintenanceStatus = "operational"
	MaintenanceInProgress  MaintenanceStatus = "maintenance"
	MaintenanceOutOfOrder  MaintenanceStatus = "out_of_order"
)

func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenanceOperational, MaintenanceInProgress, MaintenanceOutOfOrder:
		return true
	}
	return false
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentApproved  AssignmentStatus = "approved"
	AssignmentRejected  AssignmentStatus = "rejected"
	AssignmentCompleted AssignmentStatus = "completed"
)

// Blocking reports whether the assignment still holds its time window.
func (s AssignmentStatus) Blocking() bool {
	return s == AssignmentPending || s == AssignmentApproved
}

type Assignment struct {
	EventID    string           `json:"event_id"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Status     AssignmentStatus `json:"status"`
	AssignedAt time.Time        `json:"assigned_at"`
	AssignedBy string           `json:"assigned_by,omitempty"`
}

type Resource struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Type              ResourceType      `json:"type"`
	Category          ResourceCategory  `json:"category"`
	Location          string            `json:"location"`
	Capacity          int               `json:"capacity"`
	IsAvailable       bool              `json:"is_available"`
	MaintenanceStatus MaintenanceStatus `json:"maintenance_status"`
	AssignedTo        []Assignment      `json:"assigned_to"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Usable reports whether the resource can take assignments at all.
func (r Resource) Usable() bool {
	return r.IsAvailable && r.MaintenanceStatus == MaintenanceOperational
}

// FindBlockingAssignment returns the index of the event's pending/approved assignment, or -1.
func (r Resource) FindBlockingAssignment(eventID string) int {
	for i, a := range r.AssignedTo {
		if a.EventID == eventID && a.Status.Blocking() {
			return i
		}
	}
	return -1
}

func (r Resource) Clone() Resource {
	out := r
	out.AssignedTo = append([]Assignment(nil), r.AssignedTo...)
	return out
}
