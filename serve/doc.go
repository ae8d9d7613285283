// Package serve runs the gRPC health endpoint of a validation worker.
//
// The server registers the standard grpc.health.v1 service and reports one
// status for the whole server ("") and one for ServiceName. Both start
// NOT_SERVING; the worker flips them as it starts and stops taking jobs:
//
//	srv, err := serve.NewServer(cfg, logger)
//	if err != nil {
//		return err
//	}
//	go srv.Serve(ctx)
//
//	worker.Run(ctx, worker.Options{
//		OnServing: srv.SetServing,
//		// ...
//	})
package serve
