package flightdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Lookups bundles the optional enrichment tables.
type Lookups struct {
	Airports      *AirportLookup
	Cancellations *CancellationLookup
}

// LoadLookups loads both tables. A missing or broken file leaves its table
// empty; the import runs without that enrichment.
func LoadLookups(logger *zap.Logger, airportsFile, cancellationsFile string) Lookups {
	return Lookups{
		Airports:      LoadAirportLookup(logger, airportsFile),
		Cancellations: LoadCancellationLookup(logger, cancellationsFile),
	}
}

// AirportLookup maps IATA codes to "lat,lon" coordinate strings.
type AirportLookup struct {
	coordinates map[string]string
}

// Coordinates returns the location of an airport code.
func (a *AirportLookup) Coordinates(code string) (string, bool) {
	if a == nil || code == "" {
		return "", false
	}
	location, ok := a.coordinates[strings.ToUpper(code)]
	return location, ok
}

func (a *AirportLookup) Len() int {
	if a == nil {
		return 0
	}
	return len(a.coordinates)
}

// LoadAirportLookup reads a headerless OpenFlights-style airports CSV, plain
// or gzipped. Columns: ID, Name, City, Country, IATA, ICAO, Lat, Lon, ...
// Rows without a usable code or coordinates are skipped.
func LoadAirportLookup(logger *zap.Logger, path string) *AirportLookup {
	lookup := &AirportLookup{coordinates: map[string]string{}}
	if path == "" {
		return lookup
	}

	source, err := openStream(path)
	if err != nil {
		logger.Warn("airport lookup unavailable", zap.String("file", path), zap.Error(err))
		return lookup
	}
	defer source.Close()

	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("airport lookup truncated", zap.String("file", path), zap.Error(err))
			break
		}

		if len(record) < 8 {
			continue
		}
		iata := strings.TrimSpace(record[4])
		if iata == "" || iata == `\N` {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[6]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[7]), 64)
		if err != nil {
			continue
		}

		lookup.coordinates[strings.ToUpper(iata)] = fmt.Sprintf("%.6f,%.6f", lat, lon)
	}

	logger.Info("loaded airport locations",
		zap.Int("count", len(lookup.coordinates)), zap.String("file", path))
	return lookup
}

// CancellationLookup maps cancellation codes to their descriptions.
type CancellationLookup struct {
	reasons map[string]string
}

// Reason returns the description of a cancellation code.
func (c *CancellationLookup) Reason(code string) (string, bool) {
	if c == nil || code == "" {
		return "", false
	}
	reason, ok := c.reasons[strings.ToUpper(code)]
	return reason, ok
}

func (c *CancellationLookup) Len() int {
	if c == nil {
		return 0
	}
	return len(c.reasons)
}

// LoadCancellationLookup reads a CSV whose header names Code and Description
// columns.
func LoadCancellationLookup(logger *zap.Logger, path string) *CancellationLookup {
	lookup := &CancellationLookup{reasons: map[string]string{}}
	if path == "" {
		return lookup
	}

	source, err := openStream(path)
	if err != nil {
		logger.Warn("cancellation lookup unavailable", zap.String("file", path), zap.Error(err))
		return lookup
	}
	defer source.Close()

	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		logger.Warn("cancellation lookup unreadable", zap.String("file", path), zap.Error(err))
		return lookup
	}

	codeIdx, descIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Code":
			codeIdx = i
		case "Description":
			descIdx = i
		}
	}
	if codeIdx < 0 || descIdx < 0 {
		logger.Warn("cancellation lookup needs Code and Description columns",
			zap.String("file", path), zap.Strings("header", header))
		return lookup
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("cancellation lookup truncated", zap.String("file", path), zap.Error(err))
			break
		}

		if len(record) <= codeIdx || len(record) <= descIdx {
			continue
		}
		code := strings.TrimSpace(record[codeIdx])
		description := strings.TrimSpace(record[descIdx])
		if code == "" || description == "" {
			continue
		}

		lookup.reasons[strings.ToUpper(code)] = description
	}

	logger.Info("loaded cancellation reasons",
		zap.Int("count", len(lookup.reasons)), zap.String("file", path))
	return lookup
}
