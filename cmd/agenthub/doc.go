// Command agenthub runs the orchestration hub: HTTP API, Prometheus
// metrics, capability health probing, and degraded-mode queue replay.
//
// Usage:
//
//	agenthub serve                        # start the hub
//	agenthub serve --config agenthub.yaml # with a config file
//	agenthub version                      # print version
package main
