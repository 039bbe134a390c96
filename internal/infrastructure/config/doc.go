// Package config loads application configuration from environment
// variables (12-factor style) via envconfig, with working defaults for
// local development. Every resilience policy knob is surfaced here:
// breaker thresholds, retry waits, rate limit budgets, degradation
// windows, and the streaming session cap.
package config
