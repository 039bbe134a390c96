// Package logging provides structured logging built on zap.
//
// Production mode emits JSON to stdout at info level; development mode
// emits colored console output at debug level. The Logger embeds
// *zap.Logger, so call sites use zap fields directly.
package logging
