// Package scheduler runs fan-out batches on a timetable.
//
// Jobs are scheduled once, at a fixed interval or on a cron expression
// (robfig/cron syntax with an optional seconds field). A job whose previous
// run is still in progress is skipped rather than run twice at once, and
// Stop cancels the context of running jobs and waits for them to return.
//
// BatchJob adapts an orchestrator policy into a job, which is how a
// dashboard keeps its panels fresh:
//
//	orch := fanout.New[string, Panel](client, fanout.WithCoordinator(c))
//
//	s := scheduler.New()
//	_ = s.ScheduleCron("dashboard", "*/30 * * * * *",
//		scheduler.BatchJob(orch.RunAll, panelRequests, publish))
//	_ = s.Start()
//	defer func() { <-s.Stop() }()
//
// Cron expressions are evaluated in Config.Location. "@every" descriptors
// run at whole-second granularity.
package scheduler
