package access_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type engineFixture struct {
	db     *gorm.DB
	store  *access.GormStore
	engine *access.Engine

	org           *models.Organization
	adminProfile  *models.Profile
	memberProfile *models.Profile
}

// newEngineFixture builds a configured organization with a billing-admin
// profile (edit on organization) and a member profile (read on property).
// No subscription is created.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	org := testutil.CreateTestOrg(t, db)
	adminProfile := testutil.CreateTestProfile(t, db, &org.ID, "Administrator")
	testutil.SetPermission(t, db, adminProfile.ID, "organization", testutil.FullPerms)
	testutil.SetPermission(t, db, adminProfile.ID, "property", testutil.FullPerms)
	memberProfile := testutil.CreateTestProfile(t, db, &org.ID, "Agent")
	testutil.SetPermission(t, db, memberProfile.ID, "property", testutil.ReadOnly)

	store := access.NewGormStore(db)
	return &engineFixture{
		db:            db,
		store:         store,
		engine:        access.NewEngine(store, access.LookupFailureDeny, testutil.Logger()),
		org:           org,
		adminProfile:  adminProfile,
		memberProfile: memberProfile,
	}
}

func (f *engineFixture) subject(t *testing.T, user *models.User) *access.Subject {
	t.Helper()
	s, err := f.engine.LoadSubject(testutil.TestContext(t), user.ID)
	require.NoError(t, err)
	return s
}

func (f *engineFixture) superAdmin(t *testing.T, org *models.Organization) *access.Subject {
	t.Helper()
	user := testutil.CreateTestUser(t, f.db, org, nil)
	testutil.CreatePlatformAdmin(t, f.db, user.ID, true, false)
	return f.subject(t, user)
}

func assertRedirect(t *testing.T, d access.RouteDecision, to, reason string) {
	t.Helper()
	assert.False(t, d.Allowed, "expected redirect to %s, got %+v", to, d)
	assert.Equal(t, to, d.RedirectTo)
	assert.Equal(t, reason, d.Reason)
}

func assertAllowed(t *testing.T, d access.RouteDecision) {
	t.Helper()
	assert.True(t, d.Allowed, "expected allow, got %+v", d)
	assert.Empty(t, d.RedirectTo)
}

func TestEngine_LoadSubject(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)

	user := testutil.CreateTestUser(t, f.db, f.org, f.memberProfile)
	subject, err := f.engine.LoadSubject(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject.UserID)
	assert.Equal(t, f.org.ID, *subject.OrganizationID)
	assert.Equal(t, f.memberProfile.ID, *subject.ProfileID)

	_, err = f.engine.LoadSubject(ctx, uuid.New())
	assert.ErrorIs(t, err, access.ErrUnauthenticated)

	_, err = f.engine.LoadSubject(ctx, uuid.Nil)
	assert.ErrorIs(t, err, access.ErrUnauthenticated)

	inactive := testutil.CreateTestUser(t, f.db, f.org, nil)
	require.NoError(t, f.db.Model(inactive).Update("is_active", false).Error)
	_, err = f.engine.LoadSubject(ctx, inactive.ID)
	assert.ErrorIs(t, err, access.ErrUnauthenticated)

	flaky := access.NewEngine(newFlakyStore(f.store, "user"), access.LookupFailureDeny, testutil.Logger())
	_, err = flaky.LoadSubject(ctx, user.ID)
	assert.ErrorIs(t, err, access.ErrLookupFailure)
}

func TestRouteGate_Unauthenticated(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)

	assertRedirect(t, f.engine.CanEnterRoute(ctx, nil, "/dashboard"), "/sign-in", access.ReasonUnauthenticated)
	assertRedirect(t, f.engine.CanEnterRoute(ctx, &access.Subject{}, "/setup"), "/sign-in", access.ReasonUnauthenticated)
	assertAllowed(t, f.engine.CanEnterRoute(ctx, nil, "/sign-in"))
	assertAllowed(t, f.engine.CanEnterRoute(ctx, nil, "/sign-up/"))
}

func TestRouteGate_SuperAdmin(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)

	noOrg := f.superAdmin(t, nil)

	t.Run("without organization is sent to the org selector, never setup", func(t *testing.T) {
		assertRedirect(t, f.engine.CanEnterRoute(ctx, noOrg, "/dashboard"), "/admin/organizations", access.ReasonSuperAdminNoOrg)
		assertRedirect(t, f.engine.CanEnterRoute(ctx, noOrg, "/properties/42"), "/admin/organizations", access.ReasonSuperAdminNoOrg)
	})

	t.Run("never sees setup", func(t *testing.T) {
		assertRedirect(t, f.engine.CanEnterRoute(ctx, noOrg, "/setup"), "/admin/organizations", access.ReasonSuperAdminSetup)
		assertRedirect(t, f.engine.CanEnterRoute(ctx, noOrg, "/setup/step-2"), "/admin/organizations", access.ReasonSuperAdminSetup)
	})

	t.Run("platform routes allowed without organization", func(t *testing.T) {
		assertAllowed(t, f.engine.CanEnterRoute(ctx, noOrg, "/admin/organizations"))
		assertAllowed(t, f.engine.CanEnterRoute(ctx, noOrg, "/admin/plans"))
	})

	t.Run("with organization bypasses subscription checks", func(t *testing.T) {
		withOrg := f.superAdmin(t, f.org)
		d := f.engine.CanEnterRoute(ctx, withOrg, "/dashboard")
		assertAllowed(t, d)
		assert.Equal(t, access.ReasonSuperAdmin, d.Reason)
	})
}

func TestRouteGate_Setup(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)

	t.Run("unconfigured organization", func(t *testing.T) {
		for _, stored := range []*bool{testutil.BoolPtr(false), nil} {
			org := testutil.CreateTestOrgWithConfig(t, f.db, stored)
			user := testutil.CreateTestUser(t, f.db, org, nil)
			subject := f.subject(t, user)

			for _, path := range []string{"/dashboard", "/properties", "/settings/subscription", "/"} {
				assertRedirect(t, f.engine.CanEnterRoute(ctx, subject, path), "/setup", access.ReasonNotConfigured)
			}
			assertAllowed(t, f.engine.CanEnterRoute(ctx, subject, "/setup"))

			for _, path := range []string{"/setup/../properties", "/setup/./../dashboard", "/subscription-inactive/../properties", "//setup/../properties"} {
				assertRedirect(t, f.engine.CanEnterRoute(ctx, subject, path), "/setup", access.ReasonNotConfigured)
			}
		}
	})

	t.Run("configured organization cannot re-enter setup", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, f.org, f.adminProfile)
		subject := f.subject(t, user)

		assertRedirect(t, f.engine.CanEnterRoute(ctx, subject, "/setup"), "/dashboard", access.ReasonAlreadyConfigured)
	})

	t.Run("user without organization", func(t *testing.T) {
		user := testutil.CreateTestUser(t, f.db, nil, nil)
		subject := f.subject(t, user)

		assertRedirect(t, f.engine.CanEnterRoute(ctx, subject, "/dashboard"), "/setup", access.ReasonNoOrganization)
		assertAllowed(t, f.engine.CanEnterRoute(ctx, subject, "/setup"))
		assertAllowed(t, f.engine.CanEnterRoute(ctx, subject, "/subscription-inactive"))
	})

	t.Run("organization row missing is treated as unconfigured", func(t *testing.T) {
		missing := uuid.New()
		subject := &access.Subject{UserID: uuid.New(), OrganizationID: &missing}

		assertRedirect(t, f.engine.CanEnterRoute(ctx, subject, "/dashboard"), "/setup", access.ReasonNotConfigured)
	})
}

func TestRouteGate_Subscription(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)

	billingAdmin := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, f.adminProfile))
	member := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, f.memberProfile))
	noProfile := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, nil))

	t.Run("no subscription row at all", func(t *testing.T) {
		state, err := f.engine.SubscriptionState(ctx, member)
		require.NoError(t, err)
		assert.False(t, state.HasActiveAccess)

		assertRedirect(t, f.engine.CanEnterRoute(ctx, member, "/properties"), "/subscription-inactive", access.ReasonSubscriptionInactive)
		assertRedirect(t, f.engine.CanEnterRoute(ctx, noProfile, "/properties"), "/subscription-inactive", access.ReasonSubscriptionInactive)
		assertRedirect(t, f.engine.CanEnterRoute(ctx, billingAdmin, "/properties"), "/settings/subscription", access.ReasonSubscriptionRequired)
	})

	t.Run("dot segments cannot borrow a loop-safe prefix", func(t *testing.T) {
		for _, path := range []string{
			"/subscription-inactive/../properties",
			"/admin/organizations/../../properties",
			"/setup/../properties",
		} {
			assertRedirect(t, f.engine.CanEnterRoute(ctx, member, path), "/subscription-inactive", access.ReasonSubscriptionInactive)
		}
		assertRedirect(t, f.engine.CanEnterRoute(ctx, billingAdmin, "/settings/subscription/../../properties"), "/settings/subscription", access.ReasonSubscriptionRequired)
	})

	t.Run("billing admin may open subscription setup", func(t *testing.T) {
		assertAllowed(t, f.engine.CanEnterRoute(ctx, billingAdmin, "/settings/subscription"))
		assertAllowed(t, f.engine.CanEnterRoute(ctx, billingAdmin, "/settings/subscription/checkout"))
	})

	t.Run("member asking for subscription setup is held", func(t *testing.T) {
		assertRedirect(t, f.engine.CanEnterRoute(ctx, member, "/settings/subscription"), "/subscription-inactive", access.ReasonSubscriptionInactive)
		assertAllowed(t, f.engine.CanEnterRoute(ctx, member, "/subscription-inactive"))
	})

	t.Run("past due does not grant access", func(t *testing.T) {
		testutil.CreateTestSubscription(t, f.db, f.org.ID, nil, models.SubscriptionStatusPastDue)
		assertRedirect(t, f.engine.CanEnterRoute(ctx, member, "/properties"), "/subscription-inactive", access.ReasonSubscriptionInactive)
	})

	t.Run("active subscription allows", func(t *testing.T) {
		testutil.CreateTestSubscription(t, f.db, f.org.ID, nil, models.SubscriptionStatusActive)

		d := f.engine.CanEnterRoute(ctx, member, "/properties")
		assertAllowed(t, d)
		assert.Equal(t, access.ReasonAllowed, d.Reason)
	})
}

func TestRouteGate_LookupFailurePolicy(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)
	testutil.CreateTestSubscription(t, f.db, f.org.ID, nil, models.SubscriptionStatusActive)
	member := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, f.memberProfile))

	for _, failing := range []string{"org", "subscription"} {
		t.Run(failing+" deny", func(t *testing.T) {
			engine := access.NewEngine(newFlakyStore(f.store, failing), access.LookupFailureDeny, testutil.Logger())
			assertRedirect(t, engine.CanEnterRoute(ctx, member, "/properties"), "/sign-in", access.ReasonLookupFailure)
		})

		t.Run(failing+" allow", func(t *testing.T) {
			engine := access.NewEngine(newFlakyStore(f.store, failing), access.LookupFailureAllow, testutil.Logger())
			d := engine.CanEnterRoute(ctx, member, "/properties")
			assertAllowed(t, d)
			assert.Equal(t, access.ReasonLookupFailure, d.Reason)
		})
	}

	t.Run("admin registry failure is not elevation", func(t *testing.T) {
		superUser := testutil.CreateTestUser(t, f.db, nil, nil)
		testutil.CreatePlatformAdmin(t, f.db, superUser.ID, true, false)
		subject := &access.Subject{UserID: superUser.ID}

		engine := access.NewEngine(newFlakyStore(f.store, "admin"), access.LookupFailureDeny, testutil.Logger())
		assertRedirect(t, engine.CanEnterRoute(ctx, subject, "/dashboard"), "/setup", access.ReasonNoOrganization)
	})
}

func TestEngine_GateNavigation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)
	testutil.CreateTestSubscription(t, f.db, f.org.ID, nil, models.SubscriptionStatusActive)
	user := testutil.CreateTestUser(t, f.db, f.org, f.memberProfile)

	t.Run("no identity", func(t *testing.T) {
		d, subject := f.engine.GateNavigation(ctx, uuid.Nil, "/properties")
		assertRedirect(t, d, "/sign-in", access.ReasonUnauthenticated)
		assert.Nil(t, subject)
	})

	t.Run("known user", func(t *testing.T) {
		d, subject := f.engine.GateNavigation(ctx, user.ID, "/properties")
		assertAllowed(t, d)
		require.NotNil(t, subject)
		assert.Equal(t, user.ID, subject.UserID)
	})

	t.Run("unknown user", func(t *testing.T) {
		d, subject := f.engine.GateNavigation(ctx, uuid.New(), "/properties")
		assertRedirect(t, d, "/sign-in", access.ReasonUnauthenticated)
		assert.Nil(t, subject)
	})

	t.Run("user lookup failure", func(t *testing.T) {
		deny := access.NewEngine(newFlakyStore(f.store, "user"), access.LookupFailureDeny, testutil.Logger())
		d, _ := deny.GateNavigation(ctx, user.ID, "/properties")
		assertRedirect(t, d, "/sign-in", access.ReasonLookupFailure)

		lenient := access.NewEngine(newFlakyStore(f.store, "user"), access.LookupFailureAllow, testutil.Logger())
		d, _ = lenient.GateNavigation(ctx, user.ID, "/properties")
		assertAllowed(t, d)
	})
}

func TestRouteGate_RequestCache(t *testing.T) {
	f := newEngineFixture(t)
	testutil.CreateTestSubscription(t, f.db, f.org.ID, nil, models.SubscriptionStatusActive)
	member := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, f.memberProfile))

	store := newFlakyStore(f.store)
	engine := access.NewEngine(store, access.LookupFailureDeny, testutil.Logger())

	ctx := access.WithRequestCache(context.Background())
	for i := 0; i < 3; i++ {
		assertAllowed(t, engine.CanEnterRoute(ctx, member, "/properties"))
		assert.True(t, engine.CanPerform(ctx, member, access.ObjectProperty, access.ActionRead))
	}
	assert.Equal(t, int64(1), store.count("org"))
	assert.Equal(t, int64(1), store.count("subscription"))
	assert.Equal(t, int64(1), store.count("permissions"))

	uncached := context.Background()
	engine.CanEnterRoute(uncached, member, "/properties")
	engine.CanEnterRoute(uncached, member, "/properties")
	assert.Equal(t, int64(3), store.count("org"))
}

func TestEngine_CanPerform(t *testing.T) {
	f := newEngineFixture(t)
	ctx := testutil.TestContext(t)

	member := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, f.memberProfile))
	noProfile := f.subject(t, testutil.CreateTestUser(t, f.db, f.org, nil))
	super := f.superAdmin(t, nil)

	assert.True(t, f.engine.CanPerform(ctx, member, access.ObjectProperty, access.ActionRead))
	assert.True(t, f.engine.CanPerform(ctx, member, access.ObjectProperty, access.ActionPrint))
	assert.False(t, f.engine.CanPerform(ctx, member, access.ObjectProperty, access.ActionEdit))

	for _, action := range []access.Action{access.ActionCreate, access.ActionRead, access.ActionEdit, access.ActionDelete} {
		assert.False(t, f.engine.CanPerform(ctx, member, access.ObjectLease, action), "no row for lease")
		assert.False(t, f.engine.CanPerform(ctx, noProfile, access.ObjectProperty, action), "no profile")
		assert.True(t, f.engine.CanPerform(ctx, super, access.ObjectLease, action), "super admin")
	}

	assert.False(t, f.engine.CanPerform(ctx, nil, access.ObjectProperty, access.ActionRead))

	assert.ErrorIs(t, f.engine.Authorize(ctx, nil, access.ObjectProperty, access.ActionRead), access.ErrUnauthenticated)
	assert.ErrorIs(t, f.engine.Authorize(ctx, member, access.ObjectLease, access.ActionRead), access.ErrForbidden)

	flaky := access.NewEngine(newFlakyStore(f.store, "permissions"), access.LookupFailureDeny, testutil.Logger())
	assert.False(t, flaky.CanPerform(ctx, member, access.ObjectProperty, access.ActionRead))
	assert.ErrorIs(t, flaky.Authorize(ctx, member, access.ObjectProperty, access.ActionRead), access.ErrLookupFailure)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"dashboard", "/dashboard"},
		{"/properties/", "/properties"},
		{"/properties?page=2#top", "/properties"},
		{"//setup//step", "/setup/step"},
		{"/setup/../properties", "/properties"},
		{"/a/./b/../c", "/a/c"},
		{"/../../etc", "/etc"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, access.NormalizePath(tt.in))
		})
	}
}
