package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-bodkin/internal/cache"
	"github.com/23skdu/longbow-bodkin/internal/client"
	"github.com/23skdu/longbow-bodkin/internal/simd"
)

var (
	valuesCast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_values_cast_total",
		Help: "The total number of float32 values demoted to half precision",
	})

	castDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bodkin_cast_duration_seconds",
		Help:    "Time spent processing cast requests",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_cast_cache_hits_total",
		Help: "Cast requests answered from the packed column cache",
	})
)

type FlightClientInterface interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

type Server struct {
	flightClient FlightClientInterface
	datasetName  string
	alloc        memory.Allocator
	columns      cache.ColumnCache
	sem          *semaphore.Weighted
	maxInFlight  int64
}

func NewServer(fc FlightClientInterface, dataset string, maxConcurrent int) *Server {
	return &Server{
		flightClient: fc,
		datasetName:  dataset,
		alloc:        memory.NewGoAllocator(),
		columns:      cache.NewMapCache(),
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		maxInFlight:  int64(maxConcurrent),
	}
}

func startServer(addr string, fc FlightClientInterface, dataset string, maxConcurrent int) {
	srv := NewServer(fc, dataset, maxConcurrent)

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "bodkin_cached_columns",
			Help: "Packed half columns currently held in the cast cache",
		},
		func() float64 {
			return float64(srv.columns.Size())
		},
	))

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/cast", srv.handleCast)
	http.HandleFunc("/cast/arrow", srv.handleCastArrow)

	http.HandleFunc("/health", srv.handleHealth)

	log.Info().Str("addr", addr).Msg("Starting Bodkin Cast Server")
	if fc != nil {
		log.Info().Msg("Forwarding half batches to Longbow at specified server address")
	}

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("bodkin-server")

// columnKey digests a float32 column into a cache key. Identical inputs
// always demote to identical bits, so the digest is the whole identity.
func columnKey(values []float32) string {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		_, _ = h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (s *Server) handleCast(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleCast")
	defer span.End()

	start := time.Now()
	defer func() {
		castDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var values []float32
	decoder := cbor.NewDecoder(r.Body)
	if err := decoder.Decode(&values); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}

	if len(values) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	span.SetAttributes(
		attribute.Int("value_count", len(values)),
	)

	// Admission Control
	weight := int64(len(values))
	if weight > s.maxInFlight {
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err := s.sem.Acquire(ctx, weight); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(weight)

	key := columnKey(values)
	bits, ok := s.columns.Get(key)
	if ok {
		cacheHits.Inc()
	} else {
		bits = make([]uint16, len(values))
		simd.DemoteSlice(bits, values)
		s.columns.Put(key, bits)
	}
	valuesCast.Add(float64(len(values)))

	mn, mx := simd.MinMaxHalf(bits)
	norm := math.Sqrt(simd.DotHalf(bits, bits))
	span.SetAttributes(
		attribute.Float64("column_norm", norm),
	)
	log.Debug().
		Str("key", key).
		Float64("min", float64(mn.Float32())).
		Float64("max", float64(mx.Float32())).
		Float64("norm", norm).
		Msg("Cast column stats")

	if s.flightClient != nil {
		if err := s.forwardToLongbow(ctx, values); err != nil {
			log.Error().Err(err).Msg("Error forwarding half column to Longbow")
		}
	}

	w.Header().Set("Content-Type", "application/cbor")
	if err := cbor.NewEncoder(w).Encode(bits); err != nil {
		log.Error().Err(err).Msg("Failed to encode cast response")
	}
}

func (s *Server) forwardToLongbow(ctx context.Context, values []float32) error {
	rb, err := client.NewRecordBatchBuilder(s.alloc).BuildRecordBatch([][]float32{values})
	if err != nil || rb == nil {
		return err
	}
	defer rb.Release()

	return s.flightClient.DoPut(ctx, s.datasetName, rb)
}

func (s *Server) handleCastArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleCastArrow")
	defer span.End()

	start := time.Now()
	defer func() {
		castDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reader, err := ipc.NewReader(r.Body, ipc.WithAllocator(s.alloc))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create IPC reader: %v", err), http.StatusBadRequest)
		return
	}
	defer reader.Release()

	var writer *ipc.Writer
	totalRows := int64(0)

	for reader.Next() {
		rec := reader.Record()

		weight := rec.NumRows() * rec.NumCols()
		if weight == 0 {
			continue
		}
		if weight > s.maxInFlight {
			log.Error().Int64("weight", weight).Int64("limit", s.maxInFlight).Msg("Arrow batch exceeds admission limit")
			if writer == nil {
				http.Error(w, "Batch too large", http.StatusRequestEntityTooLarge)
			}
			return
		}
		if err := s.sem.Acquire(ctx, weight); err != nil {
			log.Error().Err(err).Msg("Failed to acquire semaphore for arrow batch")
			break
		}
		halfRec := client.CastRecordToHalf(s.alloc, rec)
		s.sem.Release(weight)

		valuesCast.Add(float64(weight))
		totalRows += halfRec.NumRows()

		if writer == nil {
			w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
			writer = ipc.NewWriter(w, ipc.WithSchema(halfRec.Schema()))
			defer writer.Close()
		}

		if s.flightClient != nil {
			if err := s.flightClient.DoPut(ctx, s.datasetName, halfRec); err != nil {
				log.Error().Err(err).Msg("Error forwarding half batch to Longbow")
			}
		}

		err := writer.Write(halfRec)
		halfRec.Release()
		if err != nil {
			log.Error().Err(err).Msg("Failed to write half batch")
			return
		}
	}

	if reader.Err() != nil {
		log.Error().Err(reader.Err()).Msg("Error reading Arrow stream")
		if writer == nil {
			http.Error(w, "Stream error", http.StatusInternalServerError)
		}
		return
	}

	if writer == nil {
		w.WriteHeader(http.StatusOK)
	}
	log.Info().Int64("rows", totalRows).Msg("Cast Arrow stream to half precision")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
