// Package logging provides structured logging for Pulse.
//
// The package wraps log/slog and adds:
//   - JSON, text and colorized console formats (console uses tint)
//   - redaction of caller identifiers, secrets and store credentials
//   - fields read from the context (instance, job, endpoint, caller)
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
//	ctx = logging.WithInstance(ctx, instanceID)
//	logger.InfoContext(ctx, "Flush completed", "records", 100)
//
// Components take a *slog.Logger, pass them logger.Slog().
//
// # Redaction
//
// With RedactCallers enabled, values under the keys caller, caller_id and
// callerId keep their first four characters:
//
//	caller=user-8812 -> caller=user***
//
// Passwords embedded in redis:// URLs are always masked.
package logging
