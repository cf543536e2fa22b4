package dto

import (
	"sort"

	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/validation"
	"github.com/hugh/rentwise/internal/database/models"
)

type ProfileResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	OrganizationID  string `json:"organization_id,omitempty"`
	IsSystemProfile bool   `json:"is_system_profile"`
	IsGlobal        bool   `json:"is_global"`
}

func NewProfileResponse(p *models.Profile) ProfileResponse {
	resp := ProfileResponse{
		ID:              p.ID.String(),
		Name:            p.Name,
		Description:     p.Description,
		IsSystemProfile: p.IsSystemProfile,
		IsGlobal:        p.IsGlobal,
	}
	if p.OrganizationID != nil {
		resp.OrganizationID = p.OrganizationID.String()
	}
	return resp
}

type PermissionDTO struct {
	ObjectType string `json:"object_type" validate:"required,objecttype"`
	CanCreate  bool   `json:"can_create"`
	CanRead    bool   `json:"can_read"`
	CanEdit    bool   `json:"can_edit"`
	CanDelete  bool   `json:"can_delete"`
}

// PermissionsRequest replaces a profile's whole matrix. Object types left out
// lose every permission.
type PermissionsRequest struct {
	Permissions []PermissionDTO `json:"permissions" validate:"dive"`
}

func (r PermissionsRequest) Validate() map[string]string {
	errors := validation.Struct(r)
	seen := make(map[string]bool, len(r.Permissions))
	for _, p := range r.Permissions {
		if seen[p.ObjectType] {
			errors["permissions"] = "duplicate object type " + p.ObjectType
		}
		seen[p.ObjectType] = true
	}
	return errors
}

func NewPermissionList(matrix access.PermissionMatrix) []PermissionDTO {
	types := matrix.ObjectTypes()
	sort.Strings(types)

	out := make([]PermissionDTO, 0, len(matrix))
	for _, ot := range types {
		p := matrix[access.ObjectType(ot)]
		out = append(out, PermissionDTO{
			ObjectType: ot,
			CanCreate:  p.CanCreate,
			CanRead:    p.CanRead,
			CanEdit:    p.CanEdit,
			CanDelete:  p.CanDelete,
		})
	}
	return out
}

type OverrideRequest struct {
	IsEnabled   *bool   `json:"is_enabled" validate:"required"`
	IsVisible   *bool   `json:"is_visible" validate:"required"`
	CustomLabel *string `json:"custom_label,omitempty" validate:"omitempty,max=100"`
	CustomIcon  *string `json:"custom_icon,omitempty" validate:"omitempty,max=50"`
	SortOrder   *int    `json:"sort_order,omitempty" validate:"omitempty,gte=0"`
}

func (r OverrideRequest) Validate() map[string]string {
	return validation.Struct(r)
}

type OverridesResponse struct {
	Buttons         []access.Override `json:"buttons"`
	NavigationItems []access.Override `json:"navigation_items"`
}

type SyncResponse struct {
	Queued  bool                 `json:"queued"`
	TaskID  string               `json:"task_id,omitempty"`
	Reports []*access.SyncReport `json:"reports,omitempty"`
}
