package constants

import "time"

// Advisory lock ids shared by every instance pointing at the same store. The base keeps
// them clear of locks taken by the embedding application.
const lockBase = 0x5152_0000

const (
	MigrationLock = lockBase + iota
	DispatchLock
	UnlockStaleLock
)

var Locks = []int{
	MigrationLock,
	DispatchLock,
	UnlockStaleLock,
}

const (
	SchemaName = "quirrel_schema"

	// StaleLockAfter releases rows left in processing by a crashed instance.
	StaleLockAfter = 5 * time.Minute
)
