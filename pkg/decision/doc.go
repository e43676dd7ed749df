// Package decision defines the shared decision model for the Sentinel
// admission-control engine: the verdict, confidence, threat-level and
// source enumerations, and the unified Decision record produced by every
// evaluation phase.
//
// All other packages (cache, rules, fallback, timeout, pipeline) consume
// these types; this package has no dependencies beyond the standard
// library so it can sit at the bottom of the import graph.
package decision
