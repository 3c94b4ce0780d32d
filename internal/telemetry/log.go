/**
 * Structured Logging.
 *
 * The capture engine this pipeline grew out of logged with the bare
 * standard library logger. A multi-worker soft-real-time pipeline
 * needs leveled, field-structured logs to be operable in production,
 * so this package wraps zap instead.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package telemetry

import "go.uber.org/zap"

// NewLogger builds a production zap logger, or a development logger
// (console-encoded, debug level) when dev is true.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
