package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/auth"
	"github.com/hugh/rentwise/internal/database"
	"github.com/hugh/rentwise/internal/database/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every pooled connection to ":memory:" is its own database; parallel
	// writers must share one.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func BoolPtr(b bool) *bool { return &b }
func IntPtr(i int) *int { return &i }
func StrPtr(s string) *string { return &s }
func TimePtr(t time.Time) *time.Time { return &t }

// CreateTestOrg creates a configured organization.
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()
	return CreateTestOrgWithConfig(t, db, BoolPtr(true))
}

// CreateTestOrgWithConfig creates an organization with the given is_configured
// value, which may be nil.
func CreateTestOrgWithConfig(t *testing.T, db *gorm.DB, configured *bool) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:         "Test Agency",
		Slug:         "test-agency-" + uuid.New().String()[:8],
		Country:      "FR",
		IsConfigured: configured,
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestProfile creates a profile scoped to orgID, or a global one when
// orgID is nil.
func CreateTestProfile(t *testing.T, db *gorm.DB, orgID *uuid.UUID, name string) *models.Profile {
	t.Helper()

	profile := &models.Profile{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:           name,
		OrganizationID: orgID,
		IsGlobal:       orgID == nil,
	}

	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("failed to create test profile: %v", err)
	}

	return profile
}

// Perms is shorthand for a permission row: create, read, edit, delete.
type Perms struct {
	Create, Read, Edit, Delete bool
}

var (
	FullPerms = Perms{true, true, true, true}
	ReadOnly  = Perms{Read: true}
)

func SetPermission(t *testing.T, db *gorm.DB, profileID uuid.UUID, objectType string, p Perms) *models.ProfileObjectPermission {
	t.Helper()

	row := &models.ProfileObjectPermission{
		ProfileID:  profileID,
		ObjectType: objectType,
		CanCreate:  p.Create,
		CanRead:    p.Read,
		CanEdit:    p.Edit,
		CanDelete:  p.Delete,
	}

	var existing models.ProfileObjectPermission
	err := db.Where("profile_id = ? AND object_type = ?", profileID, objectType).First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		err = db.Save(row).Error
	} else {
		err = db.Create(row).Error
	}
	if err != nil {
		t.Fatalf("failed to set permission: %v", err)
	}

	return row
}

// CreateTestUser creates an active user in org (nil for a platform account)
// with the given profile (may be nil).
func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization, profile *models.Profile) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		IsActive:     true,
	}
	if org != nil {
		user.OrganizationID = &org.ID
	}
	if profile != nil {
		user.ProfileID = &profile.ID
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	user.Organization = org
	return user
}

func CreatePlatformAdmin(t *testing.T, db *gorm.DB, userID uuid.UUID, super, global bool) *models.PlatformAdmin {
	t.Helper()

	admin := &models.PlatformAdmin{
		UserID:        userID,
		IsSuperAdmin:  super,
		IsGlobalAdmin: global,
	}

	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("failed to create platform admin: %v", err)
	}

	return admin
}

func CreateTestPlan(t *testing.T, db *gorm.DB, features models.PlanFeatures) *models.Plan {
	t.Helper()

	plan := &models.Plan{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:        "plan-" + uuid.New().String()[:8],
		DisplayName: "Test Plan",
		IsActive:    true,
		MaxLots:     IntPtr(50),
		Features:    datatypes.NewJSONType(features),
	}

	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("failed to create test plan: %v", err)
	}

	return plan
}

// CreateTestSubscription creates a subscription whose period ends in a month.
func CreateTestSubscription(t *testing.T, db *gorm.DB, orgID uuid.UUID, plan *models.Plan, status models.SubscriptionStatus) *models.Subscription {
	t.Helper()

	sub := &models.Subscription{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID:   orgID,
		Status:           status,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	}
	if plan != nil {
		sub.PlanID = &plan.ID
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("failed to create test subscription: %v", err)
	}

	return sub
}

func CreateTestButton(t *testing.T, db *gorm.DB, key, objectType, action string, requiredFeature *string) *models.Button {
	t.Helper()

	button := &models.Button{
		Key:             key,
		Label:           key,
		ObjectType:      objectType,
		Action:          action,
		RequiredFeature: requiredFeature,
	}

	if err := db.Create(button).Error; err != nil {
		t.Fatalf("failed to create test button: %v", err)
	}

	return button
}

func CreateTestNavigationItem(t *testing.T, db *gorm.DB, key, path, objectType string) *models.NavigationItem {
	t.Helper()

	item := &models.NavigationItem{
		Key:        key,
		Label:      key,
		Path:       path,
		ObjectType: objectType,
		Action:     "read",
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test navigation item: %v", err)
	}

	return item
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.Issue(user)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Org        *models.Organization
	Profile    *models.Profile
	Plan       *models.Plan
	User       *models.User
	Token      string
}

// NewTestContext creates a configured organization on an active plan, an
// "Administrator" profile with full rights on every object type, a user
// holding it, and a token for that user.
func NewTestContext(t *testing.T, objectTypes ...string) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	profile := CreateTestProfile(t, db, &org.ID, "Administrator")
	for _, ot := range objectTypes {
		SetPermission(t, db, profile.ID, ot, FullPerms)
	}
	plan := CreateTestPlan(t, db, models.PlanFeatures{})
	CreateTestSubscription(t, db, org.ID, plan, models.SubscriptionStatusActive)
	user := CreateTestUser(t, db, org, profile)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		Profile:    profile,
		Plan:       plan,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
