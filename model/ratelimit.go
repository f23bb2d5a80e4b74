package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a client with a token-bucket limiter so concurrent
// workflows cannot exceed the provider quota. Complete blocks until a slot
// frees or the context expires.
func RateLimited(next Client, rps float64, burst int) Client {
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

type rateLimited struct {
	next    Client
	limiter *rate.Limiter
}

func (c *rateLimited) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, req)
}
