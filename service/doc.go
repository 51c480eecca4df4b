// Package service wires the matching engine to its collaborators: the
// audit journal, the trade outbox, the Kafka order feed, and the
// background reclaim and snapshot jobs.
//
// It provides the API used by transports like gRPC and by the
// simulation driver; the engine itself knows none of these.
package service
