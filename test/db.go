package test

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MongoPort is the port used by the MongoDB test container.
const MongoPort = "27017"

// StartMongoContainer starts a MongoDB container for testing the storage
// layer. It returns the container and any error encountered during startup.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	port := fmt.Sprintf("%s/tcp", MongoPort)
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{port},
				WaitingFor:   wait.ForListeningPort(MongoPort),
			},
			Started: true,
		})
}

// RandomDatabaseName returns a unique database name so parallel test
// packages sharing a container do not step on each other.
func RandomDatabaseName() string {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("paymentstest%d", rnd.Intn(1_000_000))
}
