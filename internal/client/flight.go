package client

import (
	"context"
	"errors"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrCircuitOpen is returned by DoPut while the breaker is rejecting
// traffic after repeated upstream failures.
var ErrCircuitOpen = errors.New("client: circuit breaker open")

// FlightClient pushes half-precision record batches to a Longbow server
// via Apache Flight. A circuit breaker guards DoPut so a dead upstream
// fails fast instead of stalling every cast request behind it.
type FlightClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
}

// NewFlightClient creates a new Flight client connected to the given address.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	client := flight.NewClientFromConn(conn, nil)
	return &FlightClient{
		client:  client,
		conn:    conn,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// DoPut sends a RecordBatch to the given dataset on the Longbow server.
// Returns ErrCircuitOpen without touching the network while the breaker
// is open.
func (c *FlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := c.doPut(ctx, datasetName, record); err != nil {
		c.breaker.Failure()
		return err
	}
	c.breaker.Success()
	return nil
}

func (c *FlightClient) doPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	desc := &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{datasetName},
	}

	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(desc)

	if err := writer.Write(record); err != nil {
		return err
	}

	return writer.Close()
}

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}
