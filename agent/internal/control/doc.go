// Package control serves the agent's local HTTP control API.
//
// Endpoints:
//
//	GET    /api/v1/status            driver state, counters, spool occupancy
//	GET    /api/v1/spool             pending items, oldest first
//	DELETE /api/v1/spool             drop every pending item
//	POST   /api/v1/pipeline/pause    stop new captures
//	POST   /api/v1/pipeline/resume   restart captures
//	POST   /api/v1/pipeline/drain    deliver the spool now if reachable
//	POST   /api/v1/pipeline/reload   re-read the config file and apply it
//	GET    /metrics                  Prometheus text exposition
//
// Pipeline commands are queued to the driver and answered with 202; the
// driver applies them between steps.
package control
