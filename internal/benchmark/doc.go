// Package benchmark compares the thread pool against hand-rolled
// alternatives: a goroutine per task and a channel-fed worker group.
package benchmark
