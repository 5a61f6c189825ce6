package main

import (
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bodkin/internal/client"
)

type BodkinFlightServer struct {
	flight.BaseFlightServer
	alloc memory.Allocator
}

func NewBodkinFlightServer() *BodkinFlightServer {
	return &BodkinFlightServer{
		alloc: memory.NewGoAllocator(),
	}
}

// DoExchange streams float32 record batches in and the demoted float16
// batches back out on the same stream.
func (s *BodkinFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return err
	}
	defer reader.Release()

	var writer *flight.Writer
	for reader.Next() {
		halfRec := client.CastRecordToHalf(s.alloc, reader.Record())
		if writer == nil {
			writer = flight.NewRecordWriter(stream, ipc.WithSchema(halfRec.Schema()))
		}
		err := writer.Write(halfRec)
		halfRec.Release()
		if err != nil {
			return err
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			return err
		}
	}
	return reader.Err()
}

func (s *BodkinFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	for reader.Next() {
		rec := reader.Record()
		halfRec := client.CastRecordToHalf(s.alloc, rec)
		log.Info().
			Int64("rows", halfRec.NumRows()).
			Int64("cols", halfRec.NumCols()).
			Msg("DoPut cast batch to half precision")
		halfRec.Release()
	}
	return reader.Err()
}

func StartFlightServer(addr string) {
	// Create the generic Flight Server which manages the GRPC lifecycle
	server := flight.NewFlightServer()

	// Register our custom service implementation
	server.RegisterFlightService(NewBodkinFlightServer())

	// Init handles the listener creation internally
	if err := server.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", addr).Msg("Starting Bodkin Flight Server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
