/*
Package log provides structured logging for tinycloud-node using zerolog.

A single global zerolog.Logger is configured once via Init, then every
package asks for a child logger scoped to what it's about to log:
WithComponent for a package name ("httpapi", "core", "metrics"),
WithSpace/WithDelegation/WithInvocation for the entity a request-shaped
log line concerns. Child loggers are cheap — zerolog.Logger.With()
copies only the accumulated field set, not a new sink.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("httpapi")
	logger.Info().Str("method", r.Method).Msg("request")

	log.WithSpace(string(space)).Info().Msg("space created")
	log.WithDelegation(delegationID).Warn().Msg("delegation near expiry")

# Output

JSON (production):

	{"level":"info","component":"httpapi","method":"POST","time":"2026-07-31T10:30:00Z","message":"request"}

Console (development, JSONOutput: false):

	2026-07-31T10:30:00Z INF request component=httpapi method=POST

# See Also

  - zerolog: https://github.com/rs/zerolog
*/
package log
