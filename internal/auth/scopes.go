package auth

// Known OAuth scopes used by the plan API.
const (
	ScopePlanRead     = "plan:read"
	ScopePlanWrite    = "plan:write"
	ScopeReconcileRun = "reconcile:run"
)
