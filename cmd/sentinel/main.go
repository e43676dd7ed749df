// Sentinel is a latency-bounded security decision engine that sits in
// front of a tool-execution layer and answers, for every requested
// operation, whether it may proceed.
//
// It layers four decision phases so an answer always arrives quickly:
// a decision cache, a fast rule engine, a timeout-managed slow
// evaluator, and an emergency fallback that can always decide.
//
// Usage:
//
//	# Start the admission server with default configuration
//	sentinel run
//
//	# Start with a custom configuration file
//	sentinel run --config /etc/sentinel/config.yaml
//
//	# Evaluate one operation locally without a server
//	sentinel check "rm -rf /tmp/build"
//
//	# Validate configuration and rule files
//	sentinel validate --rules rules.yaml
//
//	# Show version information
//	sentinel version
package main

func main() {
	Execute()
}
