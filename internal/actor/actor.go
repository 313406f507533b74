// Package actor defines the single-producer/single-consumer scheduling
// primitive the rest of the module builds on: every external input
// (transport messages, ticker fires, vote deadlines, disconnect grace
// timers, engine replies) is funneled through one Poster so that state
// mutation always happens on a single logical goroutine, per spec.md §5.
package actor

// Poster schedules fn to run on the owning Core's single event loop. Safe
// to call from any goroutine, including timer callbacks fired by
// github.com/jonboulle/clockwork.
type Poster func(fn func())
