// Package internaldefs holds the shared metric name/help definitions used by
// the Prometheus and OTel exporters. It exists so both exporters render the
// exact same metric surface from one source of truth.
package internaldefs
