package tenant

import "context"

type contextKey struct{}

func WithNamespace(ctx context.Context, ns Namespace) context.Context {
	return context.WithValue(ctx, contextKey{}, ns)
}

func FromContext(ctx context.Context) (Namespace, bool) {
	ns, ok := ctx.Value(contextKey{}).(Namespace)
	return ns, ok && !ns.IsZero()
}

// NameFromContext returns the bound namespace name, or "" when none is bound.
func NameFromContext(ctx context.Context) string {
	ns, _ := FromContext(ctx)
	return ns.String()
}
