package navigation

// Tree names a root navigation tree. Exactly one is mounted at a time.
type Tree string

const (
	TreePlaceholder       Tree = "placeholder"
	TreeUnauthenticated   Tree = "unauthenticated"
	TreeProfileError      Tree = "profile_error"
	TreeLoading           Tree = "loading"
	TreeEmailVerification Tree = "email_verification"
	TreeOwner             Tree = "owner"
	TreeTenant            Tree = "tenant"
	TreeUnknownRole       Tree = "unknown_role"
)

// RootKind is the navigator type the client host should mount.
type RootKind string

const (
	RootNone  RootKind = "none"
	RootStack RootKind = "stack"
	RootTabs  RootKind = "tabs"
)

// Route identifiers understood by the client navigation host.
const (
	RouteWelcome                = "Welcome"
	RouteLogin                  = "Login"
	RouteOwnerRegister          = "OwnerRegister"
	RouteTenantRegister         = "TenantRegister"
	RouteForgotPassword         = "ForgotPassword"
	RouteEmailVerificationEntry = "EmailVerificationEntry"
	RoutePhoneVerificationEntry = "PhoneVerificationEntry"
	RouteOnboarding             = "Onboarding"

	RouteProfileLoading    = "ProfileLoading"
	RouteProfileError      = "ProfileError"
	RouteEmailVerification = "EmailVerification"
	RouteUnsupportedRole   = "UnsupportedRole"

	RouteDashboard   = "Dashboard"
	RouteTenants     = "Tenants"
	RoutePayments    = "Payments"
	RouteAnalytics   = "Analytics"
	RouteSettings    = "Settings"
	RouteMaintenance = "Maintenance"

	RoutePropertyDetail     = "PropertyDetail"
	RouteAddProperty        = "AddProperty"
	RouteRoomMap            = "RoomMap"
	RouteRoomDetail         = "RoomDetail"
	RouteTenantDetail       = "TenantDetail"
	RouteAddTenant          = "AddTenant"
	RoutePaymentDetail      = "PaymentDetail"
	RouteRecordPayment      = "RecordPayment"
	RouteMaintenanceList    = "MaintenanceList"
	RouteMaintenanceDetail  = "MaintenanceDetail"
	RouteMaintenanceRequest = "MaintenanceRequest"
	RouteReports            = "Reports"
)

// Root describes the navigator mounted for a tree.
type Root struct {
	Kind         RootKind `json:"kind" yaml:"kind"`
	InitialRoute string   `json:"initial_route,omitempty" yaml:"initial_route,omitempty"`
	Tabs         []string `json:"tabs,omitempty" yaml:"tabs,omitempty"`
	Screens      []string `json:"screens,omitempty" yaml:"screens,omitempty"`
}

// Routes returns every route reachable from the root, tabs first.
func (r Root) Routes() []string {
	out := make([]string, 0, len(r.Tabs)+len(r.Screens))
	out = append(out, r.Tabs...)
	return append(out, r.Screens...)
}

// Has reports whether the route is reachable from the root.
func (r Root) Has(route string) bool {
	for _, name := range r.Routes() {
		if name == route {
			return true
		}
	}
	return false
}

var catalog = map[Tree]Root{
	TreePlaceholder: {Kind: RootNone},
	TreeUnauthenticated: {
		Kind:         RootStack,
		InitialRoute: RouteWelcome,
		Screens: []string{
			RouteWelcome,
			RouteLogin,
			RouteOwnerRegister,
			RouteTenantRegister,
			RouteForgotPassword,
			RouteEmailVerificationEntry,
			RoutePhoneVerificationEntry,
			RouteOnboarding,
		},
	},
	TreeProfileError: {
		Kind:         RootStack,
		InitialRoute: RouteProfileError,
		Screens:      []string{RouteProfileError},
	},
	TreeLoading: {
		Kind:         RootStack,
		InitialRoute: RouteProfileLoading,
		Screens:      []string{RouteProfileLoading},
	},
	TreeEmailVerification: {
		Kind:         RootStack,
		InitialRoute: RouteEmailVerification,
		Screens:      []string{RouteEmailVerification},
	},
	TreeOwner: {
		Kind:         RootTabs,
		InitialRoute: RouteDashboard,
		Tabs:         []string{RouteDashboard, RouteTenants, RoutePayments, RouteAnalytics, RouteSettings},
		Screens: []string{
			RoutePropertyDetail,
			RouteAddProperty,
			RouteRoomMap,
			RouteRoomDetail,
			RouteTenantDetail,
			RouteAddTenant,
			RoutePaymentDetail,
			RouteRecordPayment,
			RouteMaintenanceList,
			RouteMaintenanceDetail,
			RouteReports,
		},
	},
	TreeTenant: {
		Kind:         RootTabs,
		InitialRoute: RouteDashboard,
		Tabs:         []string{RouteDashboard, RoutePayments, RouteMaintenance, RouteSettings},
		Screens: []string{
			RoutePropertyDetail,
			RoutePaymentDetail,
			RouteMaintenanceRequest,
			RouteMaintenanceDetail,
		},
	},
	TreeUnknownRole: {
		Kind:         RootStack,
		InitialRoute: RouteUnsupportedRole,
		Screens:      []string{RouteUnsupportedRole},
	},
}

// Trees lists every tree in decision order.
func Trees() []Tree {
	return []Tree{
		TreePlaceholder,
		TreeUnauthenticated,
		TreeProfileError,
		TreeLoading,
		TreeEmailVerification,
		TreeOwner,
		TreeTenant,
		TreeUnknownRole,
	}
}

// RootFor returns a copy of the root for a tree. Unknown trees get RootNone.
func RootFor(t Tree) Root {
	root, ok := catalog[t]
	if !ok {
		return Root{Kind: RootNone}
	}
	return Root{
		Kind:         root.Kind,
		InitialRoute: root.InitialRoute,
		Tabs:         append([]string(nil), root.Tabs...),
		Screens:      append([]string(nil), root.Screens...),
	}
}

// Catalog returns a copy of every tree's root.
func Catalog() map[Tree]Root {
	out := make(map[Tree]Root, len(catalog))
	for t := range catalog {
		out[t] = RootFor(t)
	}
	return out
}
