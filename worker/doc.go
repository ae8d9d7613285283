// Package worker runs risk assessments for jobs taken from the Redis queue.
//
// # Architecture
//
// Workers consume jobs in a producer-consumer pattern:
//   - Producers push queue.Job values onto queue.JobsQueue and subscribe to
//     queue.ResultChannel(jobID)
//   - Workers pop jobs, assess the submitted system model against a loaded
//     domain model, store the assessment and publish a queue.Result
//
// # Usage
//
//	engine := modeller.NewEngine(modeller.WithLogger(logger))
//	if _, err := engine.LoadDomainDir("domains"); err != nil {
//		return err
//	}
//
//	err := worker.Run(ctx, worker.Options{
//		Client:      client,
//		Assessor:    engine,
//		Store:       st,
//		Domains:     engine.Domains(),
//		Concurrency: 4,
//	})
//
// # Stored control states
//
// A job with UseStoredStates set is assessed with the control set states
// saved for its system model, overridden by any states the job carries.
// After every successful run the resulting states are saved back, so a
// later job can build on earlier decisions.
//
// # Lifecycle
//
// On start the worker registers its metadata, sends a heartbeat and
// increments the running worker count. It refreshes the heartbeat every
// HeartbeatInterval. When ctx is done it stops popping, waits up to
// ShutdownTimeout for running jobs, then deregisters. OnServing is called
// with true once the job loops are running and false when shutdown begins.
package worker
