package main

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type mockFlightClient struct {
	mock.Mock
}

func (m *mockFlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	args := m.Called(ctx, datasetName, record)
	return args.Error(0)
}

func (m *mockFlightClient) Close() error {
	return nil
}

func TestServer_Cast(t *testing.T) {
	mfc := &mockFlightClient{}
	srv := NewServer(mfc, "test-dataset", 1024)

	t.Run("HandleCast with Forwarding", func(t *testing.T) {
		values := []float32{1.0, -2.0, 65504, 1e38}
		data, _ := cbor.Marshal(values)
		req, _ := http.NewRequest("POST", "/cast", bytes.NewReader(data))
		rr := httptest.NewRecorder()

		// Expect the demoted column to be forwarded
		mfc.On("DoPut", mock.Anything, "test-dataset", mock.Anything).Return(nil)

		http.HandlerFunc(srv.handleCast).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mfc.AssertExpectations(t)

		var bits []uint16
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &bits))
		assert.Equal(t, []uint16{0x3C00, 0xC000, 0x7BFF, 0x7C00}, bits)
	})

	t.Run("Cast cache answers repeats", func(t *testing.T) {
		values := []float32{0.5, 0.25}
		data, _ := cbor.Marshal(values)

		var responses [][]byte
		for i := 0; i < 2; i++ {
			req, _ := http.NewRequest("POST", "/cast", bytes.NewReader(data))
			rr := httptest.NewRecorder()
			http.HandlerFunc(srv.handleCast).ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code)
			responses = append(responses, rr.Body.Bytes())
		}

		assert.Equal(t, responses[0], responses[1])
		assert.Equal(t, 2, srv.columns.Size(), "one column per distinct payload")
	})

	t.Run("Column stats tolerate specials", func(t *testing.T) {
		// NaN and infinity flow through the min/max/norm pass without
		// disturbing the demoted bits on the wire.
		values := []float32{float32(math.NaN()), 2.0, float32(math.Inf(-1))}
		data, _ := cbor.Marshal(values)
		req, _ := http.NewRequest("POST", "/cast", bytes.NewReader(data))
		rr := httptest.NewRecorder()
		http.HandlerFunc(srv.handleCast).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var bits []uint16
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &bits))
		assert.Equal(t, uint16(0x4000), bits[1])
		assert.Equal(t, uint16(0xFC00), bits[2])
	})

	t.Run("Oversize payload rejected", func(t *testing.T) {
		small := NewServer(nil, "test-dataset", 4)
		values := []float32{1, 2, 3, 4, 5}
		data, _ := cbor.Marshal(values)
		req, _ := http.NewRequest("POST", "/cast", bytes.NewReader(data))
		rr := httptest.NewRecorder()
		http.HandlerFunc(small.handleCast).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("Rejects bad CBOR", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/cast", bytes.NewReader([]byte{0xFF, 0x00}))
		rr := httptest.NewRecorder()
		http.HandlerFunc(srv.handleCast).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Health Check", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()

		srv.handleHealth(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})
}

func TestServer_CastArrow(t *testing.T) {
	srv := NewServer(nil, "test-dataset", 1024)
	pool := memory.NewGoAllocator()

	schema := arrow.NewSchema(
		[]arrow.Field{{Name: "values", Type: arrow.PrimitiveTypes.Float32}},
		nil,
	)
	fb := array.NewFloat32Builder(pool)
	defer fb.Release()
	fb.AppendValues([]float32{1.0, -2.0}, nil)
	vals := fb.NewArray()
	defer vals.Release()
	rec := array.NewRecordBatch(schema, []arrow.Array{vals}, 2)
	defer rec.Release()

	var body bytes.Buffer
	writer := ipc.NewWriter(&body, ipc.WithSchema(schema))
	require.NoError(t, writer.Write(rec))
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest("POST", "/cast/arrow", &body)
	rr := httptest.NewRecorder()
	http.HandlerFunc(srv.handleCastArrow).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	reader, err := ipc.NewReader(rr.Body, ipc.WithAllocator(pool))
	require.NoError(t, err)
	defer reader.Release()

	require.True(t, reader.Next())
	out := reader.Record()
	assert.Equal(t, arrow.FixedWidthTypes.Float16, out.Schema().Field(0).Type)

	halves := out.Column(0).(*array.Float16)
	assert.Equal(t, uint16(0x3C00), halves.Value(0).Uint16())
	assert.Equal(t, uint16(0xC000), halves.Value(1).Uint16())
}

func TestServer_CastArrowOversizeBatch(t *testing.T) {
	srv := NewServer(nil, "test-dataset", 4)
	pool := memory.NewGoAllocator()

	schema := arrow.NewSchema(
		[]arrow.Field{{Name: "values", Type: arrow.PrimitiveTypes.Float32}},
		nil,
	)
	fb := array.NewFloat32Builder(pool)
	defer fb.Release()
	fb.AppendValues([]float32{1, 2, 3, 4, 5, 6, 7, 8}, nil)
	vals := fb.NewArray()
	defer vals.Release()
	rec := array.NewRecordBatch(schema, []arrow.Array{vals}, 8)
	defer rec.Release()

	var body bytes.Buffer
	writer := ipc.NewWriter(&body, ipc.WithSchema(schema))
	require.NoError(t, writer.Write(rec))
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest("POST", "/cast/arrow", &body)
	rr := httptest.NewRecorder()
	http.HandlerFunc(srv.handleCastArrow).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestFlightServer_DoExchange(t *testing.T) {
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(NewBodkinFlightServer())
	require.NoError(t, server.Init("localhost:0"))
	go func() {
		_ = server.Serve()
	}()
	defer server.Shutdown()

	conn, err := grpc.NewClient(server.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	fc := flight.NewClientFromConn(conn, nil)

	stream, err := fc.DoExchange(context.Background())
	require.NoError(t, err)

	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema(
		[]arrow.Field{{Name: "values", Type: arrow.PrimitiveTypes.Float32}},
		nil,
	)
	fb := array.NewFloat32Builder(pool)
	defer fb.Release()
	fb.AppendValues([]float32{0.5, 1.0009766}, nil)
	vals := fb.NewArray()
	defer vals.Release()
	rec := array.NewRecordBatch(schema, []arrow.Array{vals}, 2)
	defer rec.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	require.NoError(t, writer.Write(rec))
	require.NoError(t, writer.Close())
	require.NoError(t, stream.CloseSend())

	reader, err := flight.NewRecordReader(stream)
	require.NoError(t, err)
	defer reader.Release()

	require.True(t, reader.Next())
	out := reader.Record()
	assert.Equal(t, arrow.FixedWidthTypes.Float16, out.Schema().Field(0).Type)

	halves := out.Column(0).(*array.Float16)
	assert.Equal(t, uint16(0x3800), halves.Value(0).Uint16())
	assert.Equal(t, uint16(0x3C01), halves.Value(1).Uint16())
}
