// Package api serves the command surface over HTTP and websocket.
//
// Routes
//
//	POST /invoke/{command}        named command, JSON object of arguments
//	GET  /v1/healthz              liveness
//	GET  /v1/state                global state document
//	POST /v1/buses/{id}/toggle    toggle_bus
//	PUT  /v1/speed                update_simulation_speed, body {"speed": n}
//	PUT  /v1/refresh-rate         update_refresh_rate, body {"refreshRate": n}
//	GET  /v1/stream               websocket of state frames
//
// The stream pushes a "state" frame to every client each refresh_rate
// milliseconds, re-reading the rate every cycle. Clients may send
// {"command": ..., "args": {...}} frames and get a "result" frame back.
//
// [Client] is the matching HTTP/websocket client used by the CLI and the
// terminal watcher.
package api
