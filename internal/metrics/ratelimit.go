package metrics

// ThrottleAllowed records a plan-based throttle decision that let the
// request through.
func ThrottleAllowed(scope, plan string) {
	ThrottleDecisions.WithLabelValues(scope, plan, "allowed").Inc()
}

// ThrottleDenied records a plan-based throttle denial.
func ThrottleDenied(scope, plan string) {
	ThrottleDecisions.WithLabelValues(scope, plan, "denied").Inc()
}

// IPRejected records a request rejected by per-IP protection.
// Reason is "blocked" for explicit blocks, "rate_limited" for window caps.
func IPRejected(reason string) {
	IPGuardRejections.WithLabelValues(reason).Inc()
}

// IPBlocked records a new IP block.
func IPBlocked() {
	IPBlocksTotal.Inc()
}

// AICallSucceeded records a successful provider call and its token usage.
func AICallSucceeded(inputTokens, outputTokens int) {
	AIAPICalls.WithLabelValues("success").Inc()
	AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// AICallFailed records a failed provider call.
func AICallFailed() {
	AIAPICalls.WithLabelValues("error").Inc()
}
