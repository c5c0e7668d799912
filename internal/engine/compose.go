package engine

import "context"

// Next invokes the remainder of a pipeline.
type Next func(ctx context.Context) error

// Middleware wraps dispatch with cross-cutting logic. It receives the
// intent being dispatched and the rest of the pipeline.
//
// A middleware may call next once, skip it to short-circuit the inner
// chain and the handler, or call it repeatedly to re-run them.
type Middleware func(ctx context.Context, in Intent, next Next) error

// Compose folds chain around terminal. The first middleware is the
// outermost wrapper:
//
//	Compose([A, B], in, h) runs A → B → h → B → A
//
// chain is copied, so later changes to the caller's slice do not affect
// the returned pipeline.
func Compose(chain []Middleware, in Intent, terminal Next) Next {
	mws := make([]Middleware, len(chain))
	copy(mws, chain)

	// Build the chain from the end backwards.
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := h
		h = func(ctx context.Context) error {
			return mw(ctx, in, inner)
		}
	}
	return h
}
