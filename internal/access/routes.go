package access

import (
	"path"
	"strings"
)

// Routes names the pages the route gate redirects to.
type Routes struct {
	SignIn               string
	SignUp               string
	Setup                string
	OrgSelector          string
	SubscriptionInactive string
	SubscriptionSetup    string
	Dashboard            string
	// Paths under AdminPrefix are platform routes, not organization-specific.
	AdminPrefix string
}

// DefaultRoutes returns the page layout the web shell ships with.
func DefaultRoutes() Routes {
	return Routes{
		SignIn:               "/sign-in",
		SignUp:               "/sign-up",
		Setup:                "/setup",
		OrgSelector:          "/admin/organizations",
		SubscriptionInactive: "/subscription-inactive",
		SubscriptionSetup:    "/settings/subscription",
		Dashboard:            "/dashboard",
		AdminPrefix:          "/admin",
	}
}

func (r Routes) isPublic(p string) bool {
	return under(p, r.SignIn) || under(p, r.SignUp)
}

func (r Routes) isSetup(p string) bool {
	return under(p, r.Setup)
}

func (r Routes) isLoopSafe(p string) bool {
	return r.isSetup(p) || under(p, r.OrgSelector) || under(p, r.SubscriptionInactive)
}

func (r Routes) isOrganizationSpecific(p string) bool {
	return !under(p, r.AdminPrefix) && !r.isPublic(p)
}

// Reasons attached to route decisions.
const (
	ReasonPublic               = "public"
	ReasonUnauthenticated      = "unauthenticated"
	ReasonSuperAdminSetup      = "super_admin_setup"
	ReasonAlreadyConfigured    = "already_configured"
	ReasonLoopGuard            = "loop_guard"
	ReasonSuperAdminNoOrg      = "super_admin_no_organization"
	ReasonSuperAdmin           = "super_admin"
	ReasonNoOrganization       = "no_organization"
	ReasonNotConfigured        = "not_configured"
	ReasonSubscriptionRequired = "subscription_required"
	ReasonSubscriptionInactive = "subscription_inactive"
	ReasonBillingAdmin         = "billing_admin"
	ReasonAllowed              = "allowed"
	ReasonLookupFailure        = "lookup_failure"
)

// RouteDecision is either an allow or a redirect.
type RouteDecision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Reason     string `json:"reason"`
}

func allow(reason string) RouteDecision {
	return RouteDecision{Allowed: true, Reason: reason}
}

func redirect(to, reason string) RouteDecision {
	return RouteDecision{RedirectTo: to, Reason: reason}
}

// NormalizePath drops query and fragment and resolves dot segments, so a
// path can only be "under" a prefix it actually names.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Clean("/" + p)
}

func under(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
