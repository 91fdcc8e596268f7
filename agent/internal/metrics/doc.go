// Package metrics holds the agent's Prometheus collectors and renders them in
// the text exposition format for the control API's /metrics route.
package metrics
