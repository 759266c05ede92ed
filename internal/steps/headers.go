package steps

import (
	"context"

	"github.com/tjfontaine/relay-gateway/internal/core/domain"
	"github.com/tjfontaine/relay-gateway/internal/pipeline"
)

// SetHeader returns a response step that sets a fixed header on every
// response passing through the chain.
func SetHeader(key, value string) pipeline.Step[*domain.Response] {
	return pipeline.NewStep("set-header", func(_ context.Context, res *domain.Response) pipeline.Outcome[*domain.Response] {
		res.Header.Set(key, value)
		return pipeline.Next(res)
	})
}
