package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
)

type ObjectType string

const (
	ObjectOrganization ObjectType = "organization"
	ObjectProperty     ObjectType = "property"
	ObjectUnit         ObjectType = "unit"
	ObjectTenant       ObjectType = "tenant"
	ObjectLease        ObjectType = "lease"
	ObjectPayment      ObjectType = "payment"
	ObjectAccounting   ObjectType = "accounting"
	ObjectTask         ObjectType = "task"
	ObjectMessage      ObjectType = "message"
	ObjectDocument     ObjectType = "document"
	ObjectOwner        ObjectType = "owner"
	ObjectUser         ObjectType = "user"
	ObjectProfile      ObjectType = "profile"
)

var objectTypes = []ObjectType{
	ObjectOrganization, ObjectProperty, ObjectUnit, ObjectTenant, ObjectLease,
	ObjectPayment, ObjectAccounting, ObjectTask, ObjectMessage, ObjectDocument,
	ObjectOwner, ObjectUser, ObjectProfile,
}

func ObjectTypes() []ObjectType {
	out := make([]ObjectType, len(objectTypes))
	copy(out, objectTypes)
	return out
}

func ParseObjectType(s string) (ObjectType, bool) {
	for _, t := range objectTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func (t ObjectType) String() string {
	return string(t)
}

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionImport Action = "import"
	ActionPrint  Action = "print"
	ActionCustom Action = "custom"
)

func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionCreate, ActionRead, ActionView, ActionUpdate, ActionEdit,
		ActionDelete, ActionExport, ActionImport, ActionPrint, ActionCustom:
		return a, true
	}
	return "", false
}

// Permission is one row of the matrix. The four flags are independent.
type Permission struct {
	CanCreate bool `json:"can_create"`
	CanRead   bool `json:"can_read"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// Allows maps an action onto the flag that governs it. Actions without a
// dedicated flag consult read. Unknown actions are denied.
func (p Permission) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionRead, ActionView:
		return p.CanRead
	case ActionUpdate, ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	case ActionExport, ActionImport, ActionPrint, ActionCustom:
		return p.CanRead
	}
	return false
}

// PermissionMatrix maps object types to their permission row. Missing object
// types resolve to all-false.
type PermissionMatrix map[ObjectType]Permission

func (m PermissionMatrix) Can(objectType ObjectType, action Action) bool {
	return m[objectType].Allows(action)
}

// ObjectTypes lists the object types with a row, i.e. the ones sync may touch.
func (m PermissionMatrix) ObjectTypes() []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, string(t))
	}
	return out
}

type PermissionResolver struct {
	store PermissionStore
}

func NewPermissionResolver(store PermissionStore) *PermissionResolver {
	return &PermissionResolver{store: store}
}

func (r *PermissionResolver) PermissionsFor(ctx context.Context, profileID uuid.UUID) (PermissionMatrix, error) {
	rows, err := cachedLookup(ctx, "permissions:"+profileID.String(), func() ([]models.ProfileObjectPermission, error) {
		return r.store.ListPermissions(ctx, profileID)
	})
	if err != nil {
		return PermissionMatrix{}, lookupFailure("loading permissions", err)
	}
	return matrixFromRows(rows), nil
}

func matrixFromRows(rows []models.ProfileObjectPermission) PermissionMatrix {
	m := make(PermissionMatrix, len(rows))
	for _, row := range rows {
		m[ObjectType(row.ObjectType)] = Permission{
			CanCreate: row.CanCreate,
			CanRead:   row.CanRead,
			CanEdit:   row.CanEdit,
			CanDelete: row.CanDelete,
		}
	}
	return m
}
