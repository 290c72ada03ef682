// Package service is the only write entry point into the exchange. It
// serializes every command under one mutex, logs the intent to the
// command WAL before applying it to the engine, stages resulting
// events in the outbox, and rebuilds state from snapshot plus replay
// at boot. Transports stay out: the REST layer calls into here.
package service
