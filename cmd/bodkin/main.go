package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-bodkin/internal/client"
	"github.com/23skdu/longbow-bodkin/internal/simd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var (
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	inputPath     = flag.String("input", "", "Arrow IPC file of float32 columns to cast (default: generated demo batch)")
	batchCount    = flag.Int("count", 1024, "Rows in the generated demo batch")
	duration      = flag.Duration("duration", 0, "Run cast soak test for specified duration (e.g. 10s, 20m)")
	serverAddr    = flag.String("server", "", "Longbow server address (e.g., localhost:3000)")
	datasetName   = flag.String("dataset", "bodkin_dataset", "Target dataset name on server")
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	flightAddr    = flag.String("flight", "", "Address to listen on for Flight Server (e.g. :9090)")
	maxConcurrent = flag.Int("max-concurrent", 16384, "Maximum number of concurrent values to cast")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	// Server Mode
	if *listenAddr != "" {
		var fcInterface FlightClientInterface
		if *serverAddr != "" {
			fc, err := client.NewFlightClient(*serverAddr)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create flight client")
			}
			log.Info().Str("addr", *serverAddr).Msg("Connected to Flight Server")
			fcInterface = fc
		}

		go startServer(*listenAddr, fcInterface, *datasetName, *maxConcurrent)
		if *flightAddr == "" {
			select {}
		}
	}

	if *flightAddr != "" {
		StartFlightServer(*flightAddr)
		return
	}

	if *duration > 0 {
		runSoak(*duration)
		return
	}

	pool := memory.NewGoAllocator()

	rec, err := loadOrGenerate(pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load input batch")
	}
	defer rec.Release()

	start := time.Now()
	halfRec := client.CastRecordToHalf(pool, rec)
	defer halfRec.Release()
	elapsed := time.Since(start)

	log.Info().
		Int64("rows", halfRec.NumRows()).
		Int64("cols", halfRec.NumCols()).
		Dur("elapsed", elapsed).
		Msg("Cast batch to half precision")

	// If server is provided, send via Flight
	if *serverAddr != "" {
		flightClient, err := client.NewFlightClient(*serverAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Longbow")
		}
		defer func() {
			if err := flightClient.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := flightClient.DoPut(ctx, *datasetName, halfRec); err != nil {
			log.Fatal().Err(err).Msg("Flight DoPut failed")
		}
		log.Info().Str("dataset", *datasetName).Msg("Successfully sent half batch to Longbow")
	} else {
		// Write half-precision Arrow IPC to stdout
		if err := writeArrowStream(os.Stdout, halfRec); err != nil {
			log.Warn().Err(err).Msg("Failed to write arrow stream")
		}
	}
}

// loadOrGenerate reads the first record from an IPC file, or builds a
// demo float32 batch covering the interesting half ranges: normals,
// subnormals, overflow and specials.
func loadOrGenerate(pool memory.Allocator) (arrow.RecordBatch, error) {
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		reader, err := ipc.NewReader(f, ipc.WithAllocator(pool))
		if err != nil {
			return nil, err
		}
		defer reader.Release()

		if reader.Next() {
			rec := reader.Record()
			rec.Retain()
			return rec, nil
		}
		if err := reader.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no record batches in %s", *inputPath)
	}

	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "values", Type: arrow.PrimitiveTypes.Float32},
		},
		nil,
	)

	fb := array.NewFloat32Builder(pool)
	defer fb.Release()
	fb.AppendValues(generateRamp(*batchCount), nil)
	vals := fb.NewArray()
	defer vals.Release()

	return array.NewRecordBatch(schema, []arrow.Array{vals}, int64(*batchCount)), nil
}

// generateRamp spans the half value range, with the edge cases salted in
// up front.
func generateRamp(n int) []float32 {
	res := make([]float32, n)
	specials := []float32{0, float32(math.Copysign(0, -1)), 65504, -65504, 1e38,
		float32(math.Inf(1)), float32(math.NaN()), 5.96e-8, -5.96e-8}
	for i := range res {
		if i < len(specials) {
			res[i] = specials[i]
			continue
		}
		res[i] = float32(math.Ldexp(1+float64(i%1024)/1024, i%30-15))
	}
	return res
}

func runSoak(d time.Duration) {
	log.Info().Str("duration", d.String()).Msg("Starting cast soak test")

	src := generateRamp(1 << 16)
	dst := make([]uint16, len(src))

	startTime := time.Now()
	endTime := startTime.Add(d)
	var totalValues int64
	var iter int

	for time.Now().Before(endTime) {
		simd.DemoteSlice(dst, src)

		totalValues += int64(len(src))
		iter++

		if iter%1000 == 0 {
			elapsed := time.Since(startTime)
			vps := float64(totalValues) / elapsed.Seconds()
			log.Info().
				Str("elapsed", elapsed.Round(time.Second).String()).
				Int("iter", iter).
				Int64("total_values", totalValues).
				Float64("vps", vps).
				Msg("Soak test progress")
		}
	}

	totalElapsed := time.Since(startTime)
	p := message.NewPrinter(language.English)
	p.Printf("cast %d half values in %v (%.0f values/sec)\n",
		totalValues, totalElapsed.Round(time.Millisecond),
		float64(totalValues)/totalElapsed.Seconds())
}

func writeArrowStream(w *os.File, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bodkin"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
