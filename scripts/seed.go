//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/auth"
	"github.com/hugh/rentwise/internal/database"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/pkg/config"
	"github.com/hugh/rentwise/pkg/util"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type profileSeed struct {
	name        string
	description string
	perms       map[access.ObjectType]access.Permission
}

var (
	full     = access.Permission{CanCreate: true, CanRead: true, CanEdit: true, CanDelete: true}
	readOnly = access.Permission{CanRead: true}
	readEdit = access.Permission{CanRead: true, CanEdit: true}
)

func everything(p access.Permission) map[access.ObjectType]access.Permission {
	out := make(map[access.ObjectType]access.Permission)
	for _, ot := range access.ObjectTypes() {
		out[ot] = p
	}
	return out
}

func profiles() []profileSeed {
	manager := everything(full)
	manager[access.ObjectOrganization] = readOnly
	manager[access.ObjectUser] = readOnly
	manager[access.ObjectProfile] = readOnly

	accountant := everything(readOnly)
	accountant[access.ObjectAccounting] = full
	accountant[access.ObjectPayment] = full

	return []profileSeed{
		{auth.AdministratorProfile, "Full control of the agency, billing included", everything(full)},
		{"Manager", "Day-to-day property management", manager},
		{"Accountant", "Payments and accounting", accountant},
		{"Viewer", "Read-only access", everything(readOnly)},
	}
}

func plans() []models.Plan {
	unlimited := -1
	lots := func(n int) *int { return &n }

	return []models.Plan{
		{
			Name: "starter", DisplayName: "Starter", MonthlyPrice: decimal.RequireFromString("19.00"),
			MaxLots: lots(25), MaxUsers: lots(2), MaxExtranetTenants: lots(0),
			Features: datatypes.NewJSONType(models.PlanFeatures{
				"documents": {Enabled: true},
				"tasks":     {Enabled: true},
			}),
		},
		{
			Name: "pro", DisplayName: "Pro", MonthlyPrice: decimal.RequireFromString("59.00"),
			MaxLots: lots(250), MaxUsers: lots(10), MaxExtranetTenants: lots(100),
			Features: datatypes.NewJSONType(models.PlanFeatures{
				"documents":  {Enabled: true},
				"tasks":      {Enabled: true},
				"accounting": {Enabled: true},
				"messaging":  {Enabled: true},
				"extranet":   {Enabled: true, Limits: map[string]int{"tenants": 100}},
				"reports":    {Enabled: true},
			}),
		},
		{
			Name: "enterprise", DisplayName: "Enterprise", MonthlyPrice: decimal.RequireFromString("149.00"),
			MaxLots: &unlimited, MaxUsers: &unlimited, MaxExtranetTenants: &unlimited,
			Features: datatypes.NewJSONType(func() models.PlanFeatures {
				all := models.PlanFeatures{}
				for _, key := range access.KnownFeatures() {
					all[string(key)] = models.PlanFeature{Enabled: true}
				}
				return all
			}()),
		},
	}
}

func feature(key access.FeatureKey) *string {
	s := string(key)
	return &s
}

func navigation() []models.NavigationItem {
	nav := func(key, label, icon, path string, ot access.ObjectType, action access.Action, f *string, order int) models.NavigationItem {
		return models.NavigationItem{
			Key: key, Label: label, Icon: icon, Path: path,
			ObjectType: string(ot), Action: string(action),
			RequiredFeature: f, IsSystem: true, SortOrder: order,
		}
	}
	return []models.NavigationItem{
		nav("nav.dashboard", "Dashboard", "home", "/dashboard", "", "", nil, 0),
		nav("nav.properties", "Properties", "building", "/properties", access.ObjectProperty, access.ActionRead, nil, 10),
		nav("nav.units", "Units", "door", "/units", access.ObjectUnit, access.ActionRead, nil, 20),
		nav("nav.tenants", "Tenants", "users", "/tenants", access.ObjectTenant, access.ActionRead, nil, 30),
		nav("nav.leases", "Leases", "file-signature", "/leases", access.ObjectLease, access.ActionRead, nil, 40),
		nav("nav.payments", "Payments", "credit-card", "/payments", access.ObjectPayment, access.ActionRead, nil, 50),
		nav("nav.accounting", "Accounting", "calculator", "/accounting", access.ObjectAccounting, access.ActionRead, feature(access.FeatureAccounting), 60),
		nav("nav.messages", "Messages", "inbox", "/messages", access.ObjectMessage, access.ActionRead, feature(access.FeatureMessaging), 70),
		nav("nav.documents", "Documents", "folder", "/documents", access.ObjectDocument, access.ActionRead, feature(access.FeatureDocuments), 80),
		nav("nav.tasks", "Tasks", "check-square", "/tasks", access.ObjectTask, access.ActionRead, feature(access.FeatureTasks), 90),
		nav("nav.owners", "Owners", "briefcase", "/owners", access.ObjectOwner, access.ActionRead, nil, 100),
		nav("nav.profiles", "Profiles", "shield", "/settings/profiles", access.ObjectProfile, access.ActionRead, nil, 200),
		nav("nav.users", "Users", "user-cog", "/settings/users", access.ObjectUser, access.ActionRead, nil, 210),
		nav("nav.organization", "Agency", "settings", "/settings/organization", access.ObjectOrganization, access.ActionEdit, nil, 220),
		nav("nav.subscription", "Subscription", "receipt", "/settings/subscription", access.ObjectOrganization, access.ActionEdit, nil, 230),
	}
}

func buttons() []models.Button {
	var out []models.Button
	order := 0
	for _, ot := range access.ObjectTypes() {
		for _, action := range []access.Action{access.ActionCreate, access.ActionEdit, access.ActionDelete} {
			out = append(out, models.Button{
				Key:        fmt.Sprintf("%s.%s", ot, action),
				Label:      fmt.Sprintf("%s %s", action, ot),
				ObjectType: string(ot),
				Action:     string(action),
				IsSystem:   true,
				SortOrder:  order,
			})
			order++
		}
	}
	out = append(out,
		models.Button{Key: "accounting.export", Label: "Export ledger", Icon: "download",
			ObjectType: string(access.ObjectAccounting), Action: string(access.ActionExport),
			RequiredFeature: feature(access.FeatureAccounting), IsSystem: true, SortOrder: order},
		models.Button{Key: "lease.sign", Label: "Send for signature", Icon: "pen",
			ObjectType: string(access.ObjectLease), Action: string(access.ActionEdit),
			RequiredFeature: feature(access.FeatureESignature), IsSystem: true, SortOrder: order + 1},
	)
	return out
}

func seedProfiles(db *gorm.DB) error {
	for _, seed := range profiles() {
		var profile models.Profile
		err := db.Where(models.Profile{Name: seed.name, IsSystemProfile: true}).
			Attrs(models.Profile{Description: seed.description, IsGlobal: true}).
			FirstOrCreate(&profile).Error
		if err != nil {
			return fmt.Errorf("profile %s: %w", seed.name, err)
		}

		for ot, p := range seed.perms {
			row := models.ProfileObjectPermission{
				ProfileID:  profile.ID,
				ObjectType: string(ot),
				CanCreate:  p.CanCreate,
				CanRead:    p.CanRead,
				CanEdit:    p.CanEdit,
				CanDelete:  p.CanDelete,
			}
			err := db.Where("profile_id = ? AND object_type = ?", profile.ID, row.ObjectType).
				FirstOrCreate(&row).Error
			if err != nil {
				return fmt.Errorf("profile %s permission %s: %w", seed.name, ot, err)
			}
		}
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	if err := seedProfiles(db); err != nil {
		log.Fatalf("failed to seed profiles: %v", err)
	}

	for _, plan := range plans() {
		plan := plan
		if err := db.Where(models.Plan{Name: plan.Name}).FirstOrCreate(&plan).Error; err != nil {
			log.Fatalf("failed to seed plan %s: %v", plan.Name, err)
		}
	}
	for _, item := range navigation() {
		item := item
		if err := db.Where(models.NavigationItem{Key: item.Key}).FirstOrCreate(&item).Error; err != nil {
			log.Fatalf("failed to seed navigation item %s: %v", item.Key, err)
		}
	}
	for _, button := range buttons() {
		button := button
		if err := db.Where(models.Button{Key: button.Key}).FirstOrCreate(&button).Error; err != nil {
			log.Fatalf("failed to seed button %s: %v", button.Key, err)
		}
	}

	ctx := context.Background()
	reports, err := access.NewSynchronizer(access.NewGormStore(db), cfg.Access.SyncConcurrency, logger).SynchronizeAll(ctx)
	if err != nil {
		log.Fatalf("failed to synchronize overrides: %v", err)
	}
	fmt.Printf("Synchronized %d profiles\n", len(reports))

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}
	if name == "" {
		name = "Platform Admin"
	}

	authService := auth.NewService(db, auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry()))
	resp, err := authService.Register(ctx, auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
		OrgName:  "Platform",
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	admin := models.PlatformAdmin{UserID: resp.User.ID, IsSuperAdmin: true, IsGlobalAdmin: true}
	if err := db.Create(&admin).Error; err != nil {
		log.Fatalf("failed to grant platform admin: %v", err)
	}

	fmt.Printf("Platform admin created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Token: %s\n", resp.Token)
}
