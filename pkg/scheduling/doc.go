// Package scheduling runs fan-out batches on a timetable.
//
//   - scheduler: One-time, interval and cron jobs, with BatchJob to wrap an
//     orchestrator policy as a job
//
// Scheduled refresh:
//
//	s := scheduler.New()
//	_ = s.ScheduleCron("prices", "0 */5 * * * *",
//		scheduler.BatchJob(orch.RunAll, priceRequests, publish))
//	_ = s.Start()
//	defer func() { <-s.Stop() }()
package scheduling
