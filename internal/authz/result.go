package authz

// Result is the uniform outcome of every mutating operation. Validation and
// business-rule failures are values, never panics or faults: callers branch
// on Success. Authorization denials and missing resources are structurally
// identical so a caller cannot enumerate resources it may not see.
type Result struct {
	Success     bool
	Message     string
	FieldErrors map[string]string
}

// OK builds a success result.
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Denied builds the shared denial/not-found result.
func Denied() Result {
	return Result{Message: "You do not have permission to perform this action."}
}

// Fail builds a failure result with a user-facing message.
func Fail(message string) Result {
	return Result{Message: message}
}

// Invalid builds a validation failure with per-field messages.
func Invalid(message string, fields map[string]string) Result {
	return Result{Message: message, FieldErrors: fields}
}
