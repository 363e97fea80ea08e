// Package api serves a small read-only HTTP surface for tickerbox.
//
// Endpoints:
//
//	GET /health   {"status":"ok"}
//	GET /status   queue size, watcher state and supervisor component stats
//
// The server is optional and off by default:
//
//	srv := api.NewServer(api.Options{Host: "127.0.0.1", Port: 8090, Status: provider})
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Stop(context.Background())
package api
