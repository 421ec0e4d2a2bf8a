package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/flightwatch-io/flightloader/pkg/es"
	"github.com/flightwatch-io/flightloader/pkg/flightdata"
)

// DocumentStore is the slice of the search-store API the loader drives.
type DocumentStore interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, mapping json.RawMessage) error
	Bulk(ctx context.Context, payload io.Reader, refresh bool) (*es.BulkResponse, error)
	Count(ctx context.Context, index string) (int64, error)
}

const (
	defaultBatchSize  = 500
	bulkErrorLogLimit = 5
)

// LoaderConfig carries the import knobs. Everything is explicit; there is no
// global state.
type LoaderConfig struct {
	BaseIndex     string
	BatchSize     int
	Refresh       bool
	DatePartition bool
	Mapping       json.RawMessage
}

// Loader pulls rows out of data files and bulk-writes the transformed
// documents, batch by batch, into their target indices.
type Loader struct {
	logger  *zap.Logger
	store   DocumentStore
	conf    LoaderConfig
	router  *Router
	lookups flightdata.Lookups
	counter flightdata.LineCounter

	ensured map[string]bool
	bar     *progressbar.ProgressBar

	totalRecords  int64
	loadedRecords int64
	droppedRows   int64
}

func NewLoader(logger *zap.Logger, store DocumentStore, conf LoaderConfig, lookups flightdata.Lookups, counter flightdata.LineCounter) *Loader {
	if conf.BatchSize < 1 {
		conf.BatchSize = defaultBatchSize
	}
	return &Loader{
		logger:  logger,
		store:   store,
		conf:    conf,
		router:  NewRouter(conf.BaseIndex, conf.DatePartition),
		lookups: lookups,
		counter: counter,
		ensured: map[string]bool{},
	}
}

// LoadedRecords reports how many documents the store has accepted so far.
func (l *Loader) LoadedRecords() int64 { return l.loadedRecords }

// DroppedRows reports how many rows had no routable index.
func (l *Loader) DroppedRows() int64 { return l.droppedRows }

// Pattern covers every index this run may have written.
func (l *Loader) Pattern() string { return l.router.Pattern() }

// ImportFiles runs the pipeline over the files in order. The first store
// failure aborts the run; everything flushed so far stays in place.
func (l *Loader) ImportFiles(ctx context.Context, files []string) error {
	l.logger.Info("counting records", zap.Int("files", len(files)))
	l.totalRecords = flightdata.CountTotalRecords(l.logger, l.counter, files)
	l.logger.Info("records to import", zap.String("total", formatNumber(l.totalRecords)))

	l.bar = newProgressBar(l.totalRecords)

	for _, path := range files {
		if err := l.importFile(ctx, path); err != nil {
			return err
		}
	}

	_ = l.bar.Finish()
	l.logger.Info("import complete",
		zap.Int64("loaded", l.loadedRecords),
		zap.Int64("total", l.totalRecords),
		zap.Int64("dropped", l.droppedRows))
	fmt.Printf("%s of %s records loaded\n", formatNumber(l.loadedRecords), formatNumber(l.totalRecords))
	return nil
}

type indexBuffer struct {
	lines []string
	docs  int
}

func (l *Loader) importFile(ctx context.Context, path string) error {
	l.logger.Info("importing file", zap.String("file", path))

	hints := ExtractFileHints(path)

	rows, err := flightdata.OpenRows(path)
	if err != nil {
		return err
	}
	defer rows.Close()

	l.warnMissingTimestampColumn(path, rows.Header())

	buffers := map[string]*indexBuffer{}
	var processed, indexed int64

	for {
		row, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		processed++

		doc := flightdata.Transform(row, l.lookups)
		if len(doc) == 0 {
			continue
		}

		timestamp, _ := doc["@timestamp"].(string)
		index := l.router.Route(hints, timestamp)
		if index == "" {
			l.dropRow(path, processed, row, timestamp)
			continue
		}

		if err := l.ensureIndex(ctx, index); err != nil {
			return err
		}

		docJSON, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}

		buffer := buffers[index]
		if buffer == nil {
			buffer = &indexBuffer{}
			buffers[index] = buffer
		}
		buffer.lines = append(buffer.lines,
			fmt.Sprintf(`{"index":{"_index":"%s"}}`, index), string(docJSON))
		buffer.docs++
		indexed++

		if buffer.docs >= l.conf.BatchSize {
			if err := l.flush(ctx, index, buffer); err != nil {
				return err
			}
		}
	}

	for _, index := range sortedKeys(buffers) {
		if buffers[index].docs > 0 {
			if err := l.flush(ctx, index, buffers[index]); err != nil {
				return err
			}
		}
	}

	l.logger.Info("finished file",
		zap.String("file", path),
		zap.Int64("rows", processed),
		zap.Int64("indexed", indexed))
	return nil
}

// ensureIndex makes sure the target index exists, once per run. The store
// treats a creation conflict as success, so a lost race still ends up here.
func (l *Loader) ensureIndex(ctx context.Context, index string) error {
	if l.ensured[index] {
		return nil
	}

	exists, err := l.store.IndexExists(ctx, index)
	if err != nil {
		return err
	}
	if !exists {
		l.logger.Info("creating index", zap.String("index", index))
		if err := l.store.CreateIndex(ctx, index, l.conf.Mapping); err != nil {
			return err
		}
	}

	l.ensured[index] = true
	return nil
}

func (l *Loader) flush(ctx context.Context, index string, buffer *indexBuffer) error {
	payload := strings.Join(buffer.lines, "\n") + "\n"

	resp, err := l.store.Bulk(ctx, strings.NewReader(payload), l.conf.Refresh)
	if err != nil {
		return fmt.Errorf("bulk write to %s: %w", index, err)
	}

	if resp.Errors {
		for _, item := range resp.FailedItems(bulkErrorLogLimit) {
			errType, reason := "", ""
			if item.Error != nil {
				errType, reason = item.Error.Type, item.Error.Reason
			}
			l.logger.Error("bulk item rejected",
				zap.String("index", index),
				zap.Int("status", item.Status),
				zap.String("type", errType),
				zap.String("reason", reason))
		}
		return fmt.Errorf("bulk indexing reported errors for %s; aborting", index)
	}

	l.loadedRecords += int64(buffer.docs)
	RecordsLoadedCount.WithLabelValues(index).Add(float64(buffer.docs))
	BatchesFlushedCount.WithLabelValues(index).Inc()
	if l.bar != nil {
		_ = l.bar.Add(buffer.docs)
	}

	buffer.lines = buffer.lines[:0]
	buffer.docs = 0
	return nil
}

func (l *Loader) dropRow(path string, rowNumber int64, row flightdata.Row, parsed string) {
	l.droppedRows++
	RowsDroppedCount.WithLabelValues(filepath.Base(path)).Inc()

	raw := row["@timestamp"]
	if raw == "" {
		raw = row["FlightDate"]
	}
	l.logger.Warn("dropping row with no routable index",
		zap.String("file", filepath.Base(path)),
		zap.Int64("row", rowNumber),
		zap.String("raw_timestamp", raw),
		zap.String("parsed_timestamp", parsed),
		zap.String("origin", row["Origin"]),
		zap.String("dest", row["Dest"]),
		zap.String("carrier", row["Reporting_Airline"]))
}

func (l *Loader) warnMissingTimestampColumn(path string, header []string) {
	for _, name := range header {
		if name == "@timestamp" || name == "FlightDate" {
			return
		}
	}

	sample := header
	if len(sample) > 10 {
		sample = sample[:10]
	}
	l.logger.Warn("header has no @timestamp or FlightDate column; rows may be dropped",
		zap.String("file", filepath.Base(path)),
		zap.Strings("header", sample))
}

func sortedKeys(buffers map[string]*indexBuffer) []string {
	keys := make([]string, 0, len(buffers))
	for key := range buffers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func newProgressBar(total int64) *progressbar.ProgressBar {
	if total <= 0 {
		return progressbar.Default(-1, "records loaded")
	}
	return progressbar.Default(total, "records loaded")
}

// formatNumber renders counts with thousands separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteRune(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
