package response

import (
	"context"
	"net/http"
)

// ContextKey is the type for context keys used by the response package.
type ContextKey string

// BasePathContextKey is the context key for storing the base path.
const BasePathContextKey ContextKey = "optimade.basePath"

// WithBasePath stores the path prefix the service is mounted under.
func WithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, BasePathContextKey, basePath)
}

// getBasePath retrieves the base path from the request context.
// Returns empty string if not configured.
func getBasePath(r *http.Request) string {
	if basePath, ok := r.Context().Value(BasePathContextKey).(string); ok {
		return basePath
	}
	return ""
}
