package testutil

import (
	"context"

	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// TestBroker holds a throwaway RabbitMQ instance
type TestBroker struct {
	URL       string
	container *rabbitmq.RabbitMQContainer
}

// SetupTestBroker starts a RabbitMQ container and returns its AMQP URL
func SetupTestBroker(ctx context.Context) (*TestBroker, error) {
	container, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	if err != nil {
		return nil, err
	}

	url, err := container.AmqpURL(ctx)
	if err != nil {
		if terr := container.Terminate(ctx); terr != nil {
			err = terr
		}
		return nil, err
	}

	return &TestBroker{URL: url, container: container}, nil
}

// Teardown terminates the container
func (t *TestBroker) Teardown(ctx context.Context) {
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
