package ctxutil

import "context"

// AuditMetadata merges request-scoped correlation from ctx into an audit
// metadata map. A nil map is allocated; the map is returned for call-site
// chaining.
func AuditMetadata(ctx context.Context, meta map[string]any) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		meta["request_id"] = id
	}
	return meta
}
