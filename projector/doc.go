// Package projector rebuilds read models by first draining an archive of
// historical chunks and then switching to a live feed.
//
// A Source keeps one State per projector name in a StateStore:
//
//	EMPTY --Run--> CATCHUP("", "")
//	CATCHUP(chunk, last) --archive exhausted--> LIVE(last)
//	CATCHUP(chunk, last) --Run--> CATCHUP(chunk, last)
//	LIVE(last) --Run--> LIVE(last)
//
// There is no transition from LIVE back to CATCHUP. Re-seeding a projector
// from the archive is done by writing a CATCHUP state to its StateStore.
//
// Every event whose ID is not greater than the watermark is skipped, so the
// overlap between archive and live feed, and the re-read of a partially
// drained chunk, are delivered once. The state is persisted after every
// event. A crash between the handler returning and the state being stored
// redelivers that one event on the next Run; handlers must be idempotent.
//
// Errors from the archive, the live feed, the handler or the state store
// abort Run. There is no retry inside the package; the scheduler re-invokes
// Run, which resumes from the last persisted state. At most one Run per
// projector name may be in flight.
package projector
