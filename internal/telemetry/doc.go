// Package telemetry wires the OpenTelemetry SDK for the hub. With telemetry
// disabled no exporters are created and the global providers stay noop.
package telemetry
