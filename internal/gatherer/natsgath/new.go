package natsgath

import (
	"github.com/nats-io/nats.go"
)

// New creates a NATS gatherer that streams batch events to the given subject.
func New(nc *nats.Conn, batchUuid string, subject string) *natsGatherer {
	return &natsGatherer{
		nc:        nc,
		subject:   subject,
		batchUuid: batchUuid,
	}
}

type natsGatherer struct {
	nc        *nats.Conn
	subject   string
	batchUuid string
}
