// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// The package aims to standardise structured logging across services by
// exposing a single factory, New, that creates a *slog.Logger configured by
// a set of Option functions. These options allow you to:
//
//   • Select an output format (text or json)
//   • Set the minimum log level
//   • Supply default slog.Attr values applied to every record
//   • Register ContextExtractor callbacks that inject attributes pulled from a
//     context value (for example a job id) every time Handle is invoked.
//
// # Architecture
//
// New picks slog.NewTextHandler or slog.NewJSONHandler from the configured
// Format and wraps it in a ContextHandler, which runs the registered
// ContextExtractor callbacks (queue.LogExtractor adds the job being
// processed) before delegating to the underlying handler.
//
// Helper constructors such as Group, Error, JobID, Queue, etc. live in attr.go and
// return commonly-used slog.Attr instances to keep attribute naming consistent
// across the codebase.
//
// # Usage
//
//	import "github.com/dmitrymomot/queuekit/pkg/logger"
//
//	func main() {
//	    log := logger.New(
//	        logger.WithDevelopment("mail-worker"),
//	        logger.WithContextValue("call_id", ctxKeyCallID),
//	    )
//	    logger.SetAsDefault(log)
//
//	    log.InfoContext(ctx, "job completed",
//	        logger.Queue("mail-queue"),
//	        logger.JobID(job.ID),
//	        logger.Duration(time.Since(start)),
//	    )
//	}
//
// # Configuration
//
// The behaviour of New can be tuned with a variety of Option helpers:
//
//   • WithDevelopment / WithStaging / WithProduction: sensible defaults per environment.
//   • FromConfig: environment defaults plus LOG_LEVEL / LOG_FORMAT overrides.
//   • WithFormat / WithTextFormatter / WithJSONFormatter: override output format.
//   • WithLevel: set a custom slog.Level.
//   • WithAttr: attach static attributes.
//   • WithContextExtractors / WithContextValue: inject attributes from context.
//
// # Error Handling
//
// Helper functions Error and Errors produce attributes only when the supplied
// error value is non-nil allowing calls like:
//
//	log.Info("operation succeeded", logger.Error(err))
//
// without an additional nil check.
package logger
