// Package server exposes the manager over a JSON HTTP API.
//
// Every answer is an api.Result envelope:
//
//	{"success": true, "message": "...", "data": {...}}
//	{"success": false, "error": "Service x does not exist."}
//
// Unknown services and tools answer 404, malformed input 400 and operations on a
// stopped service 409. The chat stream endpoint writes one JSON event per line
// (application/x-ndjson) and always ends with a done event.
//
// # Routes
//
//	GET    /health
//	GET    /api/version
//	GET    /api/services
//	POST   /api/services/start-all
//	POST   /api/services/stop-all
//	POST   /api/services/refresh
//	GET    /api/services/capabilities
//	POST   /api/services/{name}/start
//	POST   /api/services/{name}/stop
//	POST   /api/services/{name}/toggle
//	GET    /api/services/{name}/info?refresh=1
//	POST   /api/services/{name}/call_tool
//	POST   /api/services/{name}/chat
//	POST   /api/services/{name}/chat/stream
//	GET    /api/services/{name}/config
//	POST   /api/services/{name}/config
//	DELETE /api/services/{name}/config
//	GET    /api/config
//	POST   /api/config
//	GET    /api/config/template
//	POST   /api/config/reload
package server
