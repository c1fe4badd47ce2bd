// Package fetcher downloads procedure listings and details from the
// government portal's JSON API.
package fetcher

import (
	"context"
)

// JSONGetter fetches a URL and decodes its JSON body into v. Implementations
// make a single attempt and mark retryable failures with
// resilience.TransientError.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}
