// Package testing starts disposable infrastructure for integration tests.
package testing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/ecocycle/collection-service/pkg/mongodb"
)

const mongoImage = "mongo:6"

// MongoReplicaSet is a single-node replica set; the repositories write their
// outbox records in transactions, which standalone servers reject.
type MongoReplicaSet struct {
	container *tcmongo.MongoDBContainer
	uri       string
}

func StartMongoReplicaSet(ctx context.Context) (*MongoReplicaSet, error) {
	container, err := tcmongo.Run(ctx, mongoImage, tcmongo.WithReplicaSet("rs"))
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", mongoImage, err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("read connection string: %w", err)
	}
	return &MongoReplicaSet{container: container, uri: withDirectConnection(uri)}, nil
}

// Config returns a client config for database on this replica set
func (m *MongoReplicaSet) Config(database string) *mongodb.Config {
	cfg := mongodb.DefaultConfig()
	cfg.URI = m.uri
	cfg.Database = database
	cfg.AppName = "collection-service-it"
	cfg.ConnectTimeout = 15 * time.Second
	cfg.MinPoolSize = 0
	return cfg
}

// Connect opens a client the same way the binaries do
func (m *MongoReplicaSet) Connect(ctx context.Context, database string) (*mongodb.Client, error) {
	return mongodb.NewClient(ctx, m.Config(database))
}

func (m *MongoReplicaSet) Terminate(ctx context.Context) error {
	if m.container == nil {
		return nil
	}
	return testcontainers.TerminateContainer(m.container, testcontainers.StopContext(ctx))
}

// The replica set advertises its container hostname, which the host cannot
// resolve, so the driver must not follow the topology.
func withDirectConnection(uri string) string {
	if strings.Contains(uri, "directConnection=") {
		return uri
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "directConnection=true"
}
