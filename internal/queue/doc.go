// Package queue persists gallery upload jobs in SQLite and mediates every
// status transition. Workers claim items atomically so a gallery is never
// uploaded by two workers at once, and partially uploaded galleries keep a
// resume set of already transferred files across restarts.
package queue
