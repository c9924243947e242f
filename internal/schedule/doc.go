// Package schedule is the notification core: it plans per-recipient fire
// times (one optional launch alert plus recurring daily reminders), keeps the
// live trigger set armed on a cron runner, and prunes recipients whose push
// endpoint is permanently gone.
//
// The state machine per recipient id is Unscheduled -> Armed -> Fired* ->
// Torn-down. Replanning always destroys and rebuilds the whole entry; there
// is intentionally no incremental trigger diffing.
package schedule
