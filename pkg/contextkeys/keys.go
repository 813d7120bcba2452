// Package contextkeys defines typed context keys shared across packages.
//
// A dedicated package avoids import cycles between the access boundary and
// the HTTP handlers that consume its decisions.
package contextkeys

import "context"

// Key is the type used for all ShipView context keys
type Key string

const (
	// DecisionKey carries the authorization decision for the current request
	DecisionKey Key = "shipview.decision"
	// RequestIDKey carries the per-request correlation id
	RequestIDKey Key = "shipview.request_id"
	// SubjectKey carries the resolved identity-provider subject, when known
	SubjectKey Key = "shipview.subject"
)

// WithDecision stores an authorization decision in the context
func WithDecision(ctx context.Context, decision interface{}) context.Context {
	return context.WithValue(ctx, DecisionKey, decision)
}

// Decision retrieves the stored authorization decision, or nil
func Decision(ctx context.Context) interface{} {
	return ctx.Value(DecisionKey)
}

// WithRequestID stores the request correlation id in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID retrieves the request correlation id, or ""
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSubject stores the resolved subject in the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

// Subject retrieves the resolved subject, or ""
func Subject(ctx context.Context) string {
	if s, ok := ctx.Value(SubjectKey).(string); ok {
		return s
	}
	return ""
}
