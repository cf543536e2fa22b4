package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/pkg/metrics"
)

// LookupFailurePolicy decides what the route gate does when a lookup fails.
type LookupFailurePolicy string

const (
	// LookupFailureDeny redirects to sign-in.
	LookupFailureDeny LookupFailurePolicy = "deny"
	// LookupFailureAllow lets the navigation through and logs it.
	LookupFailureAllow LookupFailurePolicy = "allow"
)

// ParseLookupFailurePolicy reads a configured policy name; empty means deny.
func ParseLookupFailurePolicy(s string) (LookupFailurePolicy, error) {
	switch p := LookupFailurePolicy(s); p {
	case LookupFailureDeny, LookupFailureAllow:
		return p, nil
	case "":
		return LookupFailureDeny, nil
	}
	return "", fmt.Errorf("unknown lookup failure policy %q", s)
}

// Subject is the authenticated caller as the engine sees it.
type Subject struct {
	UserID         uuid.UUID  `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	ProfileID      *uuid.UUID `json:"profile_id,omitempty"`
}

func (s *Subject) Authenticated() bool {
	return s != nil && s.UserID != uuid.Nil
}

func (s *Subject) HasOrganization() bool {
	return s != nil && s.OrganizationID != nil && *s.OrganizationID != uuid.Nil
}

// Engine composes the resolvers into the route gate, object-action
// authorization and UI-affordance decisions.
type Engine struct {
	store         Store
	classifier    *Classifier
	subscriptions *SubscriptionResolver
	permissions   *PermissionResolver
	overrides     *OverrideResolver
	routes        Routes
	policy        LookupFailurePolicy
	logger        *slog.Logger
}

func NewEngine(store Store, policy LookupFailurePolicy, logger *slog.Logger) *Engine {
	if policy == "" {
		policy = LookupFailureDeny
	}
	return &Engine{
		store:         store,
		classifier:    NewClassifier(store, logger),
		subscriptions: NewSubscriptionResolver(store),
		permissions:   NewPermissionResolver(store),
		overrides:     NewOverrideResolver(store),
		routes:        DefaultRoutes(),
		policy:        policy,
		logger:        logger,
	}
}

// WithRoutes returns a copy of e using routes.
func (e *Engine) WithRoutes(routes Routes) *Engine {
	cp := *e
	cp.routes = routes
	return &cp
}

func (e *Engine) Routes() Routes { return e.routes }

func (e *Engine) Classifier() *Classifier { return e.classifier }

func (e *Engine) Subscriptions() *SubscriptionResolver { return e.subscriptions }

func (e *Engine) Permissions() *PermissionResolver { return e.permissions }

func (e *Engine) Overrides() *OverrideResolver { return e.overrides }

// LoadSubject reads the user row behind an authenticated identity. Missing
// and inactive users are ErrUnauthenticated.
func (e *Engine) LoadSubject(ctx context.Context, userID uuid.UUID) (*Subject, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	user, err := cachedLookup(ctx, "user:"+userID.String(), func() (*models.User, error) {
		return e.store.FindUser(ctx, userID)
	})
	if err != nil {
		return nil, lookupFailure("loading user", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrUnauthenticated
	}

	return &Subject{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		ProfileID:      user.ProfileID,
	}, nil
}

// CanEnterRoute decides whether a page navigation may proceed. Lookup
// failures are resolved by the configured LookupFailurePolicy.
func (e *Engine) CanEnterRoute(ctx context.Context, subject *Subject, path string) RouteDecision {
	path = NormalizePath(path)

	decision, err := e.evaluateRoute(ctx, subject, path)
	if err != nil {
		metrics.RecordLookupFailure("route_gate")
		if e.policy == LookupFailureAllow {
			e.logger.Warn("route gate lookup failed, allowing by policy", "path", path, "error", err)
			decision = allow(ReasonLookupFailure)
		} else {
			e.logger.Warn("route gate lookup failed, denying", "path", path, "error", err)
			decision = redirect(e.routes.SignIn, ReasonLookupFailure)
		}
	}

	metrics.RecordRouteDecision(decision.Allowed, decision.Reason)
	return decision
}

// GateNavigation loads the subject behind userID and decides the navigation.
// uuid.Nil, missing and inactive users are evaluated as unauthenticated. The
// returned subject is nil unless one was loaded.
func (e *Engine) GateNavigation(ctx context.Context, userID uuid.UUID, path string) (RouteDecision, *Subject) {
	if userID == uuid.Nil {
		return e.CanEnterRoute(ctx, nil, path), nil
	}

	subject, err := e.LoadSubject(ctx, userID)
	switch {
	case err == nil:
		return e.CanEnterRoute(ctx, subject, path), subject
	case errors.Is(err, ErrUnauthenticated):
		return e.CanEnterRoute(ctx, nil, path), nil
	}

	metrics.RecordLookupFailure("subject")
	path = NormalizePath(path)
	var decision RouteDecision
	if e.policy == LookupFailureAllow {
		e.logger.Warn("subject lookup failed, allowing by policy", "path", path, "error", err)
		decision = allow(ReasonLookupFailure)
	} else {
		e.logger.Warn("subject lookup failed, denying", "path", path, "error", err)
		decision = redirect(e.routes.SignIn, ReasonLookupFailure)
	}
	metrics.RecordRouteDecision(decision.Allowed, decision.Reason)
	return decision, nil
}

// evaluateRoute applies the gate rules in order; the first match wins.
func (e *Engine) evaluateRoute(ctx context.Context, subject *Subject, path string) (RouteDecision, error) {
	r := e.routes

	if r.isPublic(path) {
		return allow(ReasonPublic), nil
	}
	if !subject.Authenticated() {
		return redirect(r.SignIn, ReasonUnauthenticated), nil
	}

	admin := e.classifier.Classify(ctx, subject.UserID)

	if r.isSetup(path) {
		if admin.IsSuperAdmin {
			return redirect(r.OrgSelector, ReasonSuperAdminSetup), nil
		}
		// Setup is single-use. This runs before the loop guard so a
		// configured organization cannot re-enter it.
		if subject.HasOrganization() {
			state, err := e.subscriptions.Resolve(ctx, *subject.OrganizationID)
			if err != nil {
				return RouteDecision{}, err
			}
			if state.IsConfigured {
				return redirect(r.Dashboard, ReasonAlreadyConfigured), nil
			}
		}
	}

	if r.isLoopSafe(path) {
		return allow(ReasonLoopGuard), nil
	}

	if admin.IsSuperAdmin {
		if !subject.HasOrganization() && r.isOrganizationSpecific(path) {
			return redirect(r.OrgSelector, ReasonSuperAdminNoOrg), nil
		}
		return allow(ReasonSuperAdmin), nil
	}

	if !subject.HasOrganization() {
		return redirect(r.Setup, ReasonNoOrganization), nil
	}

	state, err := e.subscriptions.Resolve(ctx, *subject.OrganizationID)
	if err != nil {
		return RouteDecision{}, err
	}
	if !state.IsConfigured {
		return redirect(r.Setup, ReasonNotConfigured), nil
	}

	if !state.HasActiveAccess {
		billingAdmin, err := e.isBillingAdmin(ctx, subject)
		if err != nil {
			return RouteDecision{}, err
		}
		if !billingAdmin {
			return redirect(r.SubscriptionInactive, ReasonSubscriptionInactive), nil
		}
		if under(path, r.SubscriptionSetup) {
			return allow(ReasonBillingAdmin), nil
		}
		return redirect(r.SubscriptionSetup, ReasonSubscriptionRequired), nil
	}

	return allow(ReasonAllowed), nil
}

// isBillingAdmin reports whether the subject may edit its organization.
func (e *Engine) isBillingAdmin(ctx context.Context, subject *Subject) (bool, error) {
	if subject.ProfileID == nil {
		return false, nil
	}
	matrix, err := e.permissions.PermissionsFor(ctx, *subject.ProfileID)
	if err != nil {
		return false, err
	}
	return matrix.Can(ObjectOrganization, ActionEdit), nil
}

// Authorize checks an object action. It returns nil when allowed,
// ErrUnauthenticated, ErrForbidden, or an error wrapping ErrLookupFailure.
func (e *Engine) Authorize(ctx context.Context, subject *Subject, objectType ObjectType, action Action) error {
	if !subject.Authenticated() {
		return ErrUnauthenticated
	}
	if e.classifier.Classify(ctx, subject.UserID).IsSuperAdmin {
		return nil
	}
	if subject.ProfileID == nil {
		return ErrForbidden
	}

	matrix, err := e.permissions.PermissionsFor(ctx, *subject.ProfileID)
	if err != nil {
		return err
	}
	if !matrix.Can(objectType, action) {
		return ErrForbidden
	}
	return nil
}

// CanPerform is Authorize reduced to a boolean. Lookup failures deny.
func (e *Engine) CanPerform(ctx context.Context, subject *Subject, objectType ObjectType, action Action) bool {
	err := e.Authorize(ctx, subject, objectType, action)
	if err != nil && errors.Is(err, ErrLookupFailure) {
		metrics.RecordLookupFailure("object_action")
		e.logger.Warn("permission lookup failed, denying",
			"object_type", objectType, "action", action, "error", err)
	}
	metrics.RecordActionCheck(err == nil)
	return err == nil
}

// SubscriptionState resolves the subject's organization. Subjects without an
// organization get the restrictive zero state.
func (e *Engine) SubscriptionState(ctx context.Context, subject *Subject) (SubscriptionState, error) {
	if !subject.HasOrganization() {
		return SubscriptionState{}, nil
	}
	return e.subscriptions.Resolve(ctx, *subject.OrganizationID)
}
