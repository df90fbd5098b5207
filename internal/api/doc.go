// Package api provides an HTTP client for the fiscalização REST API.
//
// # Overview
//
// The API owns users, teams and inspection targets. This package is the
// only place that knows the wire format; everything above it works with the
// typed records in types.go.
//
//   - client.go: resty-based client, bearer auth, error mapping
//   - types.go: User, Team, Target, Filters and the status vocabulary
//
// # Client Usage
//
//	client, err := api.NewClient("https://fiscal.example.com", api.Options{Tokens: sess})
//	if err != nil {
//		return err
//	}
//	targets, err := client.FetchTargets(ctx, api.Filters{Status: "CONCLUÍDA"})
//
// # Endpoints
//
//   - POST /auth/login
//   - GET  /user, GET /user/:id
//   - GET  /target?numeroArt=&teamId=&status=
//   - GET  /team, GET /team/:id/users
//   - POST /team, POST /team/:id/users, POST /team/:id/assign-targets
//
// # Response Shapes
//
// GET /user/:id answers with either one object or an array depending on the
// server version. UserResponse decodes both and Users() always yields a
// slice, so callers never inspect the shape.
//
// # Errors
//
// Transport failures are wrapped ("execute request: ..."). Any non-2xx reply
// becomes a *StatusError carrying the server's "message" field when present.
// Decode failures are wrapped as "decode response: ...".
//
// # Status Vocabulary
//
// The canonical statuses are NÃO INICIADA, EM ANDAMENTO and CONCLUÍDA. Some
// server views emit EM ATENDIMENTO; NormalizeStatus folds it into
// EM ANDAMENTO.
package api
