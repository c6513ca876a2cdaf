package kafka

import (
	"errors"
	"time"
)

// Acknowledgement levels accepted by Config.RequiredAcks.
const (
	AcksNone   = 0
	AcksLeader = 1
	AcksAll    = -1
)

// Topics names the topics lifecycle events are relayed to. Events of one
// aggregate are keyed by subject and therefore stay on one partition.
var Topics = struct {
	CollectionEvents       string
	MaterialInterestEvents string
	ImpactEvents           string
}{
	CollectionEvents:       "ecocycle.collections.events",
	MaterialInterestEvents: "ecocycle.material-interests.events",
	ImpactEvents:           "ecocycle.impact.events",
}

type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// writer
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int

	// reader; a zero CommitInterval commits synchronously after each handler
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration
}

// DefaultConfig favours durability over throughput: every replica must ack
// and offsets are committed one message at a time.
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "collection-service",
		ClientID:      "collection-service",
		BatchSize:     100,
		BatchTimeout:  10 * time.Millisecond,
		RequiredAcks:  AcksAll,
		MinBytes:      1,
		MaxBytes:      10 << 20,
		MaxWait:       500 * time.Millisecond,
	}
}

// Validate rejects configurations the reader or writer cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: at least one broker is required"))
	}
	if c.ConsumerGroup == "" {
		errs = append(errs, errors.New("kafka: consumer group is required"))
	}
	switch c.RequiredAcks {
	case AcksNone, AcksLeader, AcksAll:
	default:
		errs = append(errs, errors.New("kafka: required acks must be 0, 1 or -1"))
	}
	if c.MinBytes > c.MaxBytes {
		errs = append(errs, errors.New("kafka: min bytes exceeds max bytes"))
	}
	return errors.Join(errs...)
}
