// Package state provides Store, a mutable state cell with change
// notification.
//
// A Store holds exactly one value. Writers replace it through SetState,
// which runs an updater function against the current value and, if the
// updater succeeds, notifies every subscribed listener.
//
// Notification happens in rounds. Each round snapshots the listener list
// when it starts, so a listener subscribed mid-round first hears the next
// round, and a listener unsubscribed mid-round is skipped if the round has
// not reached it yet. A SetState issued from inside a listener commits
// immediately but its round is queued behind the current one: rounds never
// nest.
package state
