// Package steps holds the built-in pipeline steps shipped with the
// gateway.
package steps

import (
	"context"
	"net/http"
	"strings"

	"github.com/tjfontaine/relay-gateway/internal/core/domain"
	"github.com/tjfontaine/relay-gateway/internal/pipeline"
)

// PrincipalKey is the extension key under which BearerAuth stores the
// authenticated principal.
const PrincipalKey = "auth.principal"

// Principal identifies the caller a valid bearer token resolved to.
type Principal struct {
	Token string
}

// BearerAuth returns a request step that validates the Authorization
// bearer token against the allowed set. A valid token attaches a
// Principal extension for later steps and the handler; anything else
// short-circuits with 401 and the handler never runs.
func BearerAuth(tokens []string) pipeline.Step[*domain.Request] {
	allowed := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		allowed[t] = struct{}{}
	}

	return pipeline.NewStep("bearer-auth", func(_ context.Context, req *domain.Request) pipeline.Outcome[*domain.Request] {
		header := req.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			return pipeline.Halt[*domain.Request](domain.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing bearer token",
			}))
		}

		if _, ok := allowed[token]; !ok {
			return pipeline.Halt[*domain.Request](domain.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid bearer token",
			}))
		}

		req.Set(PrincipalKey, Principal{Token: token})
		return pipeline.Next(req)
	})
}
