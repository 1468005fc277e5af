// Package jobs holds the scheduled reminder scans and the River job that
// prunes the dispatch log.
package jobs
