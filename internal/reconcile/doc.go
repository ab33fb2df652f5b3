// Package reconcile is the engine that keeps a client's view of
// conversations and tickets consistent when messages arrive from three
// concurrent sources: the initial paginated fetch, locally-initiated
// optimistic sends, and the push channel that broadcasts to all
// participants — including, sometimes, the sender.
//
// # Delivery guarantees
//
// Submit inserts a pending entry immediately, then issues the network
// request while the broadcast channel may independently deliver the
// authoritative copy. Both completion paths run through the thread
// store's merge, so the first arriving copy wins and the other is
// absorbed; Submit is idempotent under reordering of response versus
// broadcast.
//
// # Failure policy
//
// A rejected submit removes its pending entry and notifies the caller
// once. There is no automatic retry; resubmission is an explicit new
// Submit. Transport errors never cross the event boundary as panics or
// returned errors from handlers — they are converted into state.
//
// # Concurrency
//
// One mutex serializes all event application. Handlers run to
// completion before the next event is applied, so ordering between the
// three sources is adversarial but resolved entirely by the merge
// algorithm.
package reconcile
