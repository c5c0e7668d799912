package engine

import "context"

// dispatchKey is the context key under which the running dispatch is
// stored. Nested emissions read it to find their parent and depth.
type dispatchKey struct{}

type dispatchInfo struct {
	id    string
	depth int
}

func withDispatch(ctx context.Context, id string, depth int) context.Context {
	return context.WithValue(ctx, dispatchKey{}, dispatchInfo{id: id, depth: depth})
}

func dispatchFrom(ctx context.Context) (dispatchInfo, bool) {
	info, ok := ctx.Value(dispatchKey{}).(dispatchInfo)
	return info, ok
}

// DispatchIDFrom returns the ID of the dispatch running in ctx.
// Middleware uses it to label logs and spans.
func DispatchIDFrom(ctx context.Context) (string, bool) {
	info, ok := dispatchFrom(ctx)
	return info.id, ok
}

// DepthFrom returns the nesting depth of the dispatch running in ctx.
// Top-level emissions have depth 0; each nested Emit adds one.
func DepthFrom(ctx context.Context) int {
	info, _ := dispatchFrom(ctx)
	return info.depth
}

// nextDepth computes the depth and parent for an emission made under ctx.
func nextDepth(ctx context.Context) (depth int, parentID string) {
	parent, ok := dispatchFrom(ctx)
	if !ok {
		return 0, ""
	}
	return parent.depth + 1, parent.id
}

// checkDepth enforces limit. A limit of zero or less disables the check.
func checkDepth(limit, depth int, typ, parentID string) error {
	if limit <= 0 || depth <= limit {
		return nil
	}
	return &DepthExceededError{
		Type:     typ,
		ParentID: parentID,
		Depth:    depth,
		Limit:    limit,
	}
}
