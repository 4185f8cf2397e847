// Package workqueue holds deferred operator jobs in a small priority table.
// Jobs are independent of the pipeline state machine; the worker drains one
// entry per tick so a burst of operator requests cannot starve pipelines.
package workqueue
