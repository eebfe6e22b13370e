package recorder

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"marketsync/models"
)

// BookRecord is one flattened order book level in the recorded parquet
// output.
type BookRecord struct {
	Symbol       string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp    int64   `parquet:"name=timestamp, type=INT64"`
	LastUpdateID int64   `parquet:"name=last_update_id, type=INT64"`
	Side         string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        float64 `parquet:"name=price, type=DOUBLE"`
	Quantity     float64 `parquet:"name=quantity, type=DOUBLE"`
	Level        int32   `parquet:"name=level, type=INT32"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory
// writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// flattenBook converts a sorted book into level-numbered records, best
// levels first.
func flattenBook(ob models.OrderBook, sampledAt int64) []BookRecord {
	records := make([]BookRecord, 0, len(ob.Bids)+len(ob.Asks))
	for i, lvl := range ob.Bids {
		price, _ := lvl.Price.Float64()
		qty, _ := lvl.Quantity.Float64()
		records = append(records, BookRecord{
			Symbol:       ob.Symbol,
			Timestamp:    sampledAt,
			LastUpdateID: ob.LastUpdateID,
			Side:         "bid",
			Price:        price,
			Quantity:     qty,
			Level:        int32(i + 1),
		})
	}
	for i, lvl := range ob.Asks {
		price, _ := lvl.Price.Float64()
		qty, _ := lvl.Quantity.Float64()
		records = append(records, BookRecord{
			Symbol:       ob.Symbol,
			Timestamp:    sampledAt,
			LastUpdateID: ob.LastUpdateID,
			Side:         "ask",
			Price:        price,
			Quantity:     qty,
			Level:        int32(i + 1),
		})
	}
	return records
}

// encodeParquet renders records into an in-memory snappy-compressed parquet
// file.
func encodeParquet(records []BookRecord) ([]byte, error) {
	mfw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(mfw, new(BookRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return mfw.Bytes(), nil
}
