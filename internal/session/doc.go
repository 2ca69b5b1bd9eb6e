// Package session drives one capture session through its causal chain:
// start, stop, convert, upload and report fetch. Each stage refuses to run
// until its predecessor's artifact exists. A generation counter guards every
// commit, so a stage that finishes after a newer recording started has its
// result discarded instead of overwriting the new session's state.
//
// Every failed operation is logged, counted and delivered to the Notifier
// before it is returned. The session stays in its last valid state and the
// caller may retry the failed step.
package session
