// Package source implements the fetch strategies the poller can run: the
// cursor-based point feed, a single grid, and a parallel per-region grid fan-out.
//
// Every source returns a decoded domain.Batch. A *domain.DecodeError is
// returned next to a usable batch and must not abort the tick.
package source

import (
	"context"
	"encoding/json"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Caller is the JSON-RPC contract the sources depend on.
type Caller interface {
	Call(ctx context.Context, method domain.Method, params ...any) (json.RawMessage, error)
}

// fetch issues one call and decodes the response for its method.
func fetch(ctx context.Context, c Caller, method domain.Method, params ...any) (domain.Batch, error) {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return domain.Batch{}, err
	}
	return domain.Decode(method, raw)
}
