package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/dto"
	"github.com/hugh/rentwise/internal/api/handlers"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/internal/tasks"
	"github.com/hugh/rentwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func setupProfileTestRouter(t *testing.T, queue handlers.TaskEnqueuer) (chi.Router, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t, "profile", "property")

	engine := newEngine(tc.DB)
	handler := handlers.NewProfileHandler(tc.DB, engine, newSyncer(tc.DB), queue, testutil.Logger())

	r := authedRouter(tc, engine)
	r.Get("/profiles", handler.List)
	r.Delete("/profiles/{id}", handler.Delete)
	r.Get("/profiles/{id}/permissions", handler.GetPermissions)
	r.Put("/profiles/{id}/permissions", handler.PutPermissions)
	r.Get("/profiles/{id}/overrides", handler.GetOverrides)
	r.Put("/profiles/{id}/buttons/{buttonID}", handler.SetButtonOverride)
	r.Put("/profiles/{id}/navigation/{itemID}", handler.SetNavigationOverride)
	r.Post("/profiles/{id}/sync", handler.Sync)

	return r, tc
}

func profilePath(p *models.Profile, suffix string) string {
	return "/profiles/" + p.ID.String() + suffix
}

func TestProfileHandler_List(t *testing.T) {
	router, tc := setupProfileTestRouter(t, nil)
	defer tc.Cleanup()

	global := testutil.CreateTestProfile(t, tc.DB, nil, "Global Viewer")
	other := testutil.CreateTestOrg(t, tc.DB)
	testutil.CreateTestProfile(t, tc.DB, &other.ID, "Other Agency Admin")

	t.Run("organization and global profiles", func(t *testing.T) {
		rr := serve(t, router, "GET", "/profiles", nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.ListResponse[dto.ProfileResponse]
		testutil.ParseJSONResponse(t, rr, &resp)
		require.Equal(t, 2, resp.Total)
		assert.Equal(t, tc.Profile.Name, resp.Data[0].Name)
		assert.Equal(t, global.Name, resp.Data[1].Name)
		assert.True(t, resp.Data[1].IsGlobal)
	})

	t.Run("super-admin sees everything", func(t *testing.T) {
		testutil.CreatePlatformAdmin(t, tc.DB, tc.User.ID, true, false)

		rr := serve(t, router, "GET", "/profiles", nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.ListResponse[dto.ProfileResponse]
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, 3, resp.Total)
	})
}

func TestProfileHandler_Permissions(t *testing.T) {
	router, tc := setupProfileTestRouter(t, nil)
	defer tc.Cleanup()

	target := testutil.CreateTestProfile(t, tc.DB, &tc.Org.ID, "Accountant")
	testutil.SetPermission(t, tc.DB, target.ID, "property", testutil.ReadOnly)
	testutil.SetPermission(t, tc.DB, target.ID, "accounting", testutil.FullPerms)

	t.Run("get sorted by object type", func(t *testing.T) {
		rr := serve(t, router, "GET", profilePath(target, "/permissions"), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.ListResponse[dto.PermissionDTO]
		testutil.ParseJSONResponse(t, rr, &resp)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "accounting", resp.Data[0].ObjectType)
		assert.True(t, resp.Data[0].CanDelete)
		assert.Equal(t, "property", resp.Data[1].ObjectType)
		assert.False(t, resp.Data[1].CanEdit)
	})

	t.Run("put replaces the matrix", func(t *testing.T) {
		body := dto.PermissionsRequest{Permissions: []dto.PermissionDTO{
			{ObjectType: "lease", CanRead: true, CanEdit: true},
		}}

		rr := serve(t, router, "PUT", profilePath(target, "/permissions"), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var rows []models.ProfileObjectPermission
		require.NoError(t, tc.DB.Where("profile_id = ?", target.ID).Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, "lease", rows[0].ObjectType)
		assert.True(t, rows[0].CanEdit)
		assert.False(t, rows[0].CanDelete)
	})

	t.Run("put does not touch overrides", func(t *testing.T) {
		button := testutil.CreateTestButton(t, tc.DB, "lease.edit", "lease", "edit", nil)
		_, err := newSyncer(tc.DB).Synchronize(testutil.TestContext(t), target.ID)
		require.NoError(t, err)

		body := dto.PermissionsRequest{Permissions: []dto.PermissionDTO{}}
		rr := serve(t, router, "PUT", profilePath(target, "/permissions"), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var row models.ProfileButton
		require.NoError(t, tc.DB.Where("profile_id = ? AND button_id = ?", target.ID, button.ID).First(&row).Error)
		assert.True(t, row.IsEnabled)
	})

	t.Run("unknown object type", func(t *testing.T) {
		body := dto.PermissionsRequest{Permissions: []dto.PermissionDTO{{ObjectType: "spaceship"}}}

		rr := serve(t, router, "PUT", profilePath(target, "/permissions"), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "permissions[0].object_type")
	})

	t.Run("duplicate object type", func(t *testing.T) {
		body := dto.PermissionsRequest{Permissions: []dto.PermissionDTO{
			{ObjectType: "lease"}, {ObjectType: "lease", CanRead: true},
		}}

		rr := serve(t, router, "PUT", profilePath(target, "/permissions"), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("other organization's profile is not found", func(t *testing.T) {
		other := testutil.CreateTestOrg(t, tc.DB)
		foreign := testutil.CreateTestProfile(t, tc.DB, &other.ID, "Foreign")

		rr := serve(t, router, "GET", profilePath(foreign, "/permissions"), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		rr := serve(t, router, "GET", "/profiles/not-a-uuid/permissions", nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestProfileHandler_GlobalProfiles(t *testing.T) {
	router, tc := setupProfileTestRouter(t, nil)
	defer tc.Cleanup()

	global := testutil.CreateTestProfile(t, tc.DB, nil, "Global Viewer")
	body := dto.PermissionsRequest{Permissions: []dto.PermissionDTO{{ObjectType: "property", CanRead: true}}}

	t.Run("readable", func(t *testing.T) {
		rr := serve(t, router, "GET", profilePath(global, "/permissions"), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("not writable by organization admins", func(t *testing.T) {
		rr := serve(t, router, "PUT", profilePath(global, "/permissions"), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("writable by global admins", func(t *testing.T) {
		steward := testutil.CreateTestUser(t, tc.DB, tc.Org, tc.Profile)
		testutil.CreatePlatformAdmin(t, tc.DB, steward.ID, false, true)
		token := testutil.GenerateTestToken(t, tc.JWTService, steward)

		rr := serve(t, router, "PUT", profilePath(global, "/permissions"), body, token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var rows []models.ProfileObjectPermission
		require.NoError(t, tc.DB.Where("profile_id = ?", global.ID).Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, "property", rows[0].ObjectType)
	})

	t.Run("global admin flag does not reach other organizations' profiles", func(t *testing.T) {
		other := testutil.CreateTestOrg(t, tc.DB)
		foreign := testutil.CreateTestProfile(t, tc.DB, &other.ID, "Other Agency Admin")
		steward := testutil.CreateTestUser(t, tc.DB, tc.Org, tc.Profile)
		testutil.CreatePlatformAdmin(t, tc.DB, steward.ID, false, true)
		token := testutil.GenerateTestToken(t, tc.JWTService, steward)

		rr := serve(t, router, "PUT", profilePath(foreign, "/permissions"), body, token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("writable by super-admins", func(t *testing.T) {
		testutil.CreatePlatformAdmin(t, tc.DB, tc.User.ID, true, false)

		rr := serve(t, router, "PUT", profilePath(global, "/permissions"), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

func TestProfileHandler_Delete(t *testing.T) {
	router, tc := setupProfileTestRouter(t, nil)
	defer tc.Cleanup()

	t.Run("assigned profile", func(t *testing.T) {
		rr := serve(t, router, "DELETE", profilePath(tc.Profile, ""), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	t.Run("system profile", func(t *testing.T) {
		system := testutil.CreateTestProfile(t, tc.DB, &tc.Org.ID, "Owner")
		require.NoError(t, tc.DB.Model(system).Update("is_system_profile", true).Error)

		rr := serve(t, router, "DELETE", profilePath(system, ""), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	t.Run("removes the profile and its rows", func(t *testing.T) {
		victim := testutil.CreateTestProfile(t, tc.DB, &tc.Org.ID, "Intern")
		testutil.SetPermission(t, tc.DB, victim.ID, "property", testutil.ReadOnly)
		testutil.CreateTestButton(t, tc.DB, "property.view", "property", "read", nil)
		_, err := newSyncer(tc.DB).Synchronize(testutil.TestContext(t), victim.ID)
		require.NoError(t, err)

		rr := serve(t, router, "DELETE", profilePath(victim, ""), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var count int64
		tc.DB.Model(&models.Profile{}).Where("id = ?", victim.ID).Count(&count)
		assert.Zero(t, count)
		tc.DB.Model(&models.ProfileObjectPermission{}).Where("profile_id = ?", victim.ID).Count(&count)
		assert.Zero(t, count)
		tc.DB.Model(&models.ProfileButton{}).Where("profile_id = ?", victim.ID).Count(&count)
		assert.Zero(t, count)
	})
}

func TestProfileHandler_Overrides(t *testing.T) {
	router, tc := setupProfileTestRouter(t, nil)
	defer tc.Cleanup()

	button := testutil.CreateTestButton(t, tc.DB, "property.delete", "property", "delete", nil)
	item := testutil.CreateTestNavigationItem(t, tc.DB, "nav.properties", "/properties", "property")

	t.Run("set button override", func(t *testing.T) {
		body := map[string]interface{}{
			"is_enabled":   false,
			"is_visible":   true,
			"custom_label": "Remove",
			"sort_order":   3,
		}

		rr := serve(t, router, "PUT", profilePath(tc.Profile, "/buttons/"+button.ID.String()), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp access.Override
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, button.ID, resp.TargetID)
		assert.False(t, resp.IsEnabled)
		require.NotNil(t, resp.CustomLabel)
		assert.Equal(t, "Remove", *resp.CustomLabel)
	})

	t.Run("upsert replaces the row", func(t *testing.T) {
		body := map[string]interface{}{"is_enabled": true, "is_visible": true}

		rr := serve(t, router, "PUT", profilePath(tc.Profile, "/buttons/"+button.ID.String()), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var rows []models.ProfileButton
		require.NoError(t, tc.DB.Where("profile_id = ?", tc.Profile.ID).Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].IsEnabled)
		assert.Nil(t, rows[0].CustomLabel)
	})

	t.Run("set navigation override", func(t *testing.T) {
		body := map[string]interface{}{"is_enabled": false, "is_visible": false}

		rr := serve(t, router, "PUT", profilePath(tc.Profile, "/navigation/"+item.ID.String()), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("list overrides", func(t *testing.T) {
		rr := serve(t, router, "GET", profilePath(tc.Profile, "/overrides"), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.OverridesResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		require.Len(t, resp.Buttons, 1)
		require.Len(t, resp.NavigationItems, 1)
		assert.Equal(t, item.ID, resp.NavigationItems[0].TargetID)
		assert.False(t, resp.NavigationItems[0].IsVisible)
	})

	t.Run("flags are required", func(t *testing.T) {
		rr := serve(t, router, "PUT", profilePath(tc.Profile, "/buttons/"+button.ID.String()), map[string]interface{}{"is_visible": true}, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "is_enabled")
	})

	t.Run("unknown button", func(t *testing.T) {
		body := map[string]interface{}{"is_enabled": true, "is_visible": true}
		rr := serve(t, router, "PUT", profilePath(tc.Profile, "/buttons/"+tc.User.ID.String()), body, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestProfileHandler_Sync(t *testing.T) {
	t.Run("inline without a queue", func(t *testing.T) {
		router, tc := setupProfileTestRouter(t, nil)
		defer tc.Cleanup()

		testutil.CreateTestButton(t, tc.DB, "property.delete", "property", "delete", nil)
		testutil.CreateTestNavigationItem(t, tc.DB, "nav.properties", "/properties", "property")

		rr := serve(t, router, "POST", profilePath(tc.Profile, "/sync"), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.SyncResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.False(t, resp.Queued)
		require.Len(t, resp.Reports, 1)
		assert.Equal(t, 1, resp.Reports[0].Buttons)
		assert.Equal(t, 1, resp.Reports[0].NavigationItems)
		assert.Empty(t, resp.Reports[0].Failures)
	})

	t.Run("queued", func(t *testing.T) {
		queue := &fakeQueue{}
		router, tc := setupProfileTestRouter(t, queue)
		defer tc.Cleanup()

		rr := serve(t, router, "POST", profilePath(tc.Profile, "/sync"), nil, tc.Token)
		testutil.AssertStatus(t, rr, http.StatusAccepted)

		var resp dto.SyncResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Queued)
		assert.Equal(t, "task-1", resp.TaskID)

		require.Len(t, queue.tasks, 1)
		assert.Equal(t, tasks.TypeProfileSync, queue.tasks[0].Type())

		var payload tasks.ProfileSyncPayload
		require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
		require.NotNil(t, payload.ProfileID)
		assert.Equal(t, tc.Profile.ID, *payload.ProfileID)
		assert.Equal(t, tc.User.ID, payload.RequestedBy)
	})
}
