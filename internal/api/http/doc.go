// Package http exposes the manager's status view and notification channel
// over a small JSON API.
//
// Routes:
//   - GET  /health                        overall state
//   - GET  /streams                       every stream's latest status
//   - GET  /streams/:name                 one status
//   - GET  /streams/:name/value?key=a.b   dotted-path lookup
//   - POST /streams/:name/notifications   inject an operator notification
//   - POST /notifications                 inject into every stream
//   - GET  /recordings                    recordings below the configured root
package http
