package shared

import (
	"context"
	"net/http"
	"time"
)

type sessionContextKey struct{}

type requestContextKey struct{}

type locationContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

type requestHolder struct {
	req *http.Request
}

// BindRequest returns a copy of r whose context resolves to that copy. Callers
// must forward the returned request; only contexts derived from it observe the
// binding.
func BindRequest(r *http.Request) *http.Request {
	holder := &requestHolder{}
	bound := r.WithContext(context.WithValue(r.Context(), requestContextKey{}, holder))
	holder.req = bound
	return bound
}

// CurrentRequest returns the request bound to ctx, or nil when none is bound.
func CurrentRequest(ctx context.Context) *http.Request {
	if ctx == nil {
		return nil
	}
	holder, _ := ctx.Value(requestContextKey{}).(*requestHolder)
	if holder == nil {
		return nil
	}
	return holder.req
}

// ContextWithLocation activates loc for everything rendered from ctx.
func ContextWithLocation(ctx context.Context, loc *time.Location) context.Context {
	return context.WithValue(ctx, locationContextKey{}, loc)
}

// LocationFromContext returns the active timezone or nil.
func LocationFromContext(ctx context.Context) *time.Location {
	if ctx == nil {
		return nil
	}
	loc, _ := ctx.Value(locationContextKey{}).(*time.Location)
	return loc
}

// LocalTime converts t into the timezone active on ctx, falling back to UTC.
func LocalTime(ctx context.Context, t time.Time) time.Time {
	if loc := LocationFromContext(ctx); loc != nil {
		return t.In(loc)
	}
	return t.UTC()
}
