// Package logging wraps uber/zap for the admin service.
//
// Production output is JSON lines on stdout for the container's log
// collector; development output is colored console text. Every
// component takes a *logging.Logger and logs with typed zap fields:
//
//	logger.Info("instance started",
//		zap.String("instance_id", inst.ID),
//		zap.Int("pid", handle.PID))
package logging
