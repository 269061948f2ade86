// Package metrics provides Prometheus instrumentation for fanflow components.
//
// The coordinator reports admission waits and gate occupancy; the fan-out
// orchestrator reports per-operation outcomes and per-batch durations.
// Components take a Config and resolve it with FromConfig, which shares one
// Registry per Prometheus registerer so several coordinators can report to
// the same registry under different names.
//
// # Quick Start
//
//	c, _ := coordinator.NewWithConfig(coordinator.Config{
//		MaxConcurrent:    10,
//		PermitsPerSecond: 20,
//		Name:             "upstream",
//		Metrics:          metrics.DefaultConfig(),
//	})
//
//	orch := fanout.New(client,
//		fanout.WithCoordinator(c),
//		fanout.WithMetrics(metrics.DefaultConfig(), "dashboard"),
//	)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Available Metrics
//
//   - fanflow_admission_wait_seconds: Time spent waiting for a permit and a slot
//   - fanflow_admission_rate_waits_total: Admissions delayed by the permit source
//   - fanflow_concurrency_in_flight: Operations holding a concurrency slot
//   - fanflow_concurrency_waiting: Operations queued for a concurrency slot
//   - fanflow_operations_total: Operations by policy and outcome kind
//   - fanflow_operation_duration_seconds: Execution time of admitted operations
//   - fanflow_batches_total: Finished batches by policy and abort flag
//   - fanflow_batch_duration_seconds: Wall-clock time of finished batches
//
// # Labels
//
//   - coordinator: Name of the coordinator instance
//   - orchestrator: Name given to fanout.WithMetrics
//   - policy: "run_all", "run_first", "run_progressive" or "run_until"
//   - kind: "succeeded", "failed", "timed_out" or "cancelled"
//   - aborted: "true" when a batch was cut short by its policy
package metrics
