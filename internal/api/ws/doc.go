// Package ws provides the live WebSocket feeds.
//
// Status feed (GET /ws/status):
//   - server pushes {"type":"status","streams":{...}} on a fixed interval
//   - client may send {"type":"ping"} or
//     {"type":"notify","streams":["world"],"notification":{...}}
//
// Preview feed (GET /ws/preview/:name):
//   - server pushes the latest display frame of one stream as a binary
//     JPEG message whenever a new one arrives
//
// Example Usage:
//
//	hub := ws.NewPreviewHub(metrics, logger)
//	status := ws.NewStatusHandler(mgr, 100*time.Millisecond, metrics, logger)
//	router.GET("/ws/status", status.HandleConnection)
//	router.GET("/ws/preview/:name", hub.HandleConnection)
package ws
