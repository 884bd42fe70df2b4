// Command runnermetrics inspects the metrics configuration of the runner
// autoscaler and replays recorded observations through the metrics engine.
//
// Usage:
//
//	# Print the namespace a component flushes to
//	runnermetrics namespace scaleUp --config config.yaml
//
//	# Print the effective configuration
//	runnermetrics config --config config.yaml
//
//	# Replay a script of observations and log the batches instead of sending
//	runnermetrics replay script.yaml --dry-run
package main

func main() {
	Execute()
}
