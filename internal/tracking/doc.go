// Package tracking matches ranked listings against the tracked-item registry
// and maintains per-region rank histories.
package tracking
