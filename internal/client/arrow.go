package client

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-bodkin/half"
	"github.com/23skdu/longbow-bodkin/internal/simd"
)

// RecordBatchBuilder creates Arrow RecordBatches of packed
// half-precision columns from float32 vectors.
//
// Arrow's own float16.New rounds to nearest; the builder demotes with
// this library's truncating codec and feeds the raw bits, so that what
// lands in the column matches what every other consumer of the packed
// format stores.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// BuildRecordBatch demotes a slice of float32 vectors into a RecordBatch
// with a single list<float16> column named "vector".
func (b *RecordBatchBuilder) BuildRecordBatch(vectors [][]float32) (arrow.Record, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	numRows := len(vectors)

	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "vector", Type: arrow.ListOf(arrow.FixedWidthTypes.Float16)},
		},
		nil,
	)

	listBuilder := array.NewListBuilder(b.mem, arrow.FixedWidthTypes.Float16)
	defer listBuilder.Release()

	valueBuilder := listBuilder.ValueBuilder().(*array.Float16Builder)

	var packed []uint16
	for _, vec := range vectors {
		listBuilder.Append(true)

		if cap(packed) < len(vec) {
			packed = make([]uint16, len(vec))
		}
		packed = packed[:len(vec)]
		simd.DemoteSlice(packed, vec)

		for _, bits := range packed {
			valueBuilder.Append(float16.FromBits(bits))
		}
	}

	cols := []arrow.Array{listBuilder.NewArray()}
	defer cols[0].Release()

	return array.NewRecord(schema, cols, int64(numRows)), nil
}

// CastRecordToHalf rewrites a record, demoting every float32 column to
// a float16 column with the truncating codec. Non-float32 columns pass
// through untouched. The caller owns the returned record.
func CastRecordToHalf(mem memory.Allocator, rec arrow.RecordBatch) arrow.RecordBatch {
	n := int(rec.NumCols())
	fields := make([]arrow.Field, n)
	cols := make([]arrow.Array, n)

	for i := 0; i < n; i++ {
		field := rec.Schema().Field(i)
		col := rec.Column(i)

		f32, ok := col.(*array.Float32)
		if !ok {
			col.Retain()
			fields[i] = field
			cols[i] = col
			continue
		}

		bld := array.NewFloat16Builder(mem)
		for j := 0; j < f32.Len(); j++ {
			if f32.IsNull(j) {
				bld.AppendNull()
				continue
			}
			bld.Append(float16.FromBits(half.FromFloat32(f32.Value(j)).Bits()))
		}
		fields[i] = arrow.Field{Name: field.Name, Type: arrow.FixedWidthTypes.Float16, Nullable: field.Nullable}
		cols[i] = bld.NewArray()
		bld.Release()
	}

	schema := arrow.NewSchema(fields, nil)
	out := array.NewRecordBatch(schema, cols, rec.NumRows())
	for _, c := range cols {
		c.Release()
	}
	return out
}
