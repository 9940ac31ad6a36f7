package navigation

import (
	"fmt"
	"strings"
)

// UnknownRolePolicy decides what an authenticated, verified user whose role is
// neither owner nor tenant gets to see.
type UnknownRolePolicy string

const (
	// UnknownRoleReject mounts the UnsupportedRole screen.
	UnknownRoleReject UnknownRolePolicy = "reject"
	// UnknownRoleFallbackTenant mounts the tenant tree and flags the decision.
	UnknownRoleFallbackTenant UnknownRolePolicy = "fallback_tenant"
)

// ParseUnknownRolePolicy parses a policy name. An empty string selects reject.
func ParseUnknownRolePolicy(s string) (UnknownRolePolicy, error) {
	switch UnknownRolePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnknownRoleReject:
		return UnknownRoleReject, nil
	case UnknownRoleFallbackTenant:
		return UnknownRoleFallbackTenant, nil
	default:
		return "", fmt.Errorf("unknown role policy %q (want %q or %q)", s, UnknownRoleReject, UnknownRoleFallbackTenant)
	}
}

// Reason records which rule selected the tree.
type Reason string

const (
	ReasonProfileLoading    Reason = "profile_loading"
	ReasonNotAuthenticated  Reason = "not_authenticated"
	ReasonProfileFetchError Reason = "profile_fetch_error"
	ReasonProfileAbsent     Reason = "profile_absent"
	ReasonEmailUnverified   Reason = "email_unverified"
	ReasonRoleOwner         Reason = "role_owner"
	ReasonRoleTenant        Reason = "role_tenant"
	ReasonRoleUnrecognized  Reason = "role_unrecognized"
)

// ParamPropertyID scopes tenant screens to the tenant's assigned property.
const ParamPropertyID = "property_id"

// Decision is the resolver output: one tree and the navigator to mount for it.
type Decision struct {
	Tree         Tree              `json:"tree" yaml:"tree"`
	Root         Root              `json:"root" yaml:"root"`
	Reason       Reason            `json:"reason" yaml:"reason"`
	Role         Role              `json:"role,omitempty" yaml:"role,omitempty"`
	RoleFallback bool              `json:"role_fallback,omitempty" yaml:"role_fallback,omitempty"`
	Params       map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Resolver maps session snapshots to navigation decisions. It holds only its
// configured policy, so concurrent use is safe.
type Resolver struct {
	unknownRole UnknownRolePolicy
}

// NewResolver creates a Resolver. An unrecognized policy behaves as reject.
func NewResolver(policy UnknownRolePolicy) *Resolver {
	if policy != UnknownRoleFallbackTenant {
		policy = UnknownRoleReject
	}
	return &Resolver{unknownRole: policy}
}

// Policy returns the configured unknown-role policy.
func (r *Resolver) Policy() UnknownRolePolicy {
	return r.unknownRole
}

// Resolve selects the navigation tree for s. First matching rule wins.
func (r *Resolver) Resolve(s Session) Decision {
	switch {
	case s.ProfileLoading:
		return decide(TreePlaceholder, ReasonProfileLoading)
	case !s.Authenticated:
		return decide(TreeUnauthenticated, ReasonNotAuthenticated)
	case s.ProfileError != "":
		return decide(TreeProfileError, ReasonProfileFetchError)
	case s.Profile == nil:
		return decide(TreeLoading, ReasonProfileAbsent)
	case !s.Profile.EmailVerified:
		return decide(TreeEmailVerification, ReasonEmailUnverified)
	}

	role := ParseRole(s.Profile.Role)
	switch role {
	case RoleOwner:
		d := decide(TreeOwner, ReasonRoleOwner)
		d.Role = RoleOwner
		return d
	case RoleTenant:
		d := tenantDecision(s.Profile, ReasonRoleTenant)
		d.Role = RoleTenant
		return d
	}

	if r.unknownRole == UnknownRoleFallbackTenant {
		d := tenantDecision(s.Profile, ReasonRoleUnrecognized)
		d.Role = RoleUnknown
		d.RoleFallback = true
		return d
	}
	d := decide(TreeUnknownRole, ReasonRoleUnrecognized)
	d.Role = RoleUnknown
	return d
}

func decide(t Tree, reason Reason) Decision {
	return Decision{Tree: t, Root: RootFor(t), Reason: reason}
}

func tenantDecision(p *Profile, reason Reason) Decision {
	d := decide(TreeTenant, reason)
	if p.PropertyID != nil {
		d.Params = map[string]string{ParamPropertyID: p.PropertyID.String()}
	}
	return d
}
