package dto

import (
	"github.com/hugh/rentwise/internal/api/validation"
	"github.com/hugh/rentwise/internal/database/models"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=255"`
	OrgName  string `json:"org_name,omitempty" validate:"max=255"`
	Country  string `json:"country,omitempty" validate:"omitempty,len=2"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := validation.Struct(r)
	if _, bad := errors["password"]; !bad && r.Password != "" {
		if ok, msg := validation.IsValidPassword(r.Password); !ok {
			errors["password"] = msg
		}
	}
	return errors
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r LoginRequest) Validate() map[string]string {
	return validation.Struct(r)
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id,omitempty"`
	OrgName        string `json:"org_name,omitempty"`
	ProfileID      string `json:"profile_id,omitempty"`
	ProfileName    string `json:"profile_name,omitempty"`
}

func NewUserDTO(u *models.User) UserDTO {
	out := UserDTO{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
	}
	if u.OrganizationID != nil {
		out.OrganizationID = u.OrganizationID.String()
	}
	if u.Organization != nil {
		out.OrgName = u.Organization.Name
	}
	if u.ProfileID != nil {
		out.ProfileID = u.ProfileID.String()
	}
	if u.Profile != nil {
		out.ProfileName = u.Profile.Name
	}
	return out
}
