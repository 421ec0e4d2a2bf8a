package flightdata

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// integer document fields and the raw columns they come from
var integerFields = []struct {
	field  string
	column string
}{
	{"CRSDepTimeLocal", "CRSDepTime"},
	{"DepDelayMin", "DepDelay"},
	{"TaxiOutMin", "TaxiOut"},
	{"TaxiInMin", "TaxiIn"},
	{"CRSArrTimeLocal", "CRSArrTime"},
	{"ArrDelayMin", "ArrDelay"},
	{"ActualElapsedTimeMin", "ActualElapsedTime"},
	{"AirTimeMin", "AirTime"},
	{"Flights", "Flights"},
	{"DistanceMiles", "Distance"},
	{"CarrierDelayMin", "CarrierDelay"},
	{"WeatherDelayMin", "WeatherDelay"},
	{"NASDelayMin", "NASDelay"},
	{"SecurityDelayMin", "SecurityDelay"},
	{"LateAircraftDelayMin", "LateAircraftDelay"},
}

// Transform shapes one raw flight row into the document to index. Values
// that are missing or fail to coerce leave their field out entirely; the
// returned map never holds empty or nil values.
func Transform(row Row, lookups Lookups) map[string]any {
	doc := make(map[string]any)

	timestamp := present(row["@timestamp"])
	if timestamp == "" {
		timestamp = present(row["FlightDate"])
	}
	putString(doc, "@timestamp", timestamp)

	carrier := present(row["Reporting_Airline"])
	flightNumber := present(row["Flight_Number_Reporting_Airline"])
	origin := present(row["Origin"])
	dest := present(row["Dest"])

	// The natural key only exists when every part of it does.
	if timestamp != "" && carrier != "" && flightNumber != "" && origin != "" && dest != "" {
		doc["FlightID"] = strings.Join([]string{timestamp, carrier, flightNumber, origin, dest}, "_")
	}

	putString(doc, "Reporting_Airline", carrier)
	putString(doc, "Tail_Number", present(row["Tail_Number"]))
	putString(doc, "Flight_Number", flightNumber)
	putString(doc, "Origin", origin)
	putString(doc, "Dest", dest)

	for _, f := range integerFields {
		if v, ok := toInteger(row[f.column]); ok {
			doc[f.field] = v
		}
	}

	if v, ok := toBoolean(row["Cancelled"]); ok {
		doc["Cancelled"] = v
	}
	if v, ok := toBoolean(row["Diverted"]); ok {
		doc["Diverted"] = v
	}

	code := present(row["CancellationCode"])
	putString(doc, "CancellationCode", code)
	if reason, ok := lookups.Cancellations.Reason(code); ok {
		doc["CancellationReason"] = reason
	}

	if location, ok := lookups.Airports.Coordinates(origin); ok {
		doc["OriginLocation"] = location
	}
	if location, ok := lookups.Airports.Coordinates(dest); ok {
		doc["DestLocation"] = location
	}

	return doc
}

func putString(doc map[string]any, field, value string) {
	if value != "" {
		doc[field] = value
	}
}

// SampleDocument transforms the first data row of a file, for inspecting
// what an import run would index.
func SampleDocument(path string, lookups Lookups) (map[string]any, error) {
	rows, err := OpenRows(path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	row, err := rows.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return Transform(row, lookups), nil
}

func present(value string) string {
	return strings.TrimSpace(value)
}

// toInteger parses a numeric string and rounds to a whole number.
func toInteger(value string) (int, bool) {
	value = present(value)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return int(f + 0.5), true
}

// toBoolean accepts the usual true/false spellings and falls back to
// numeric: anything above zero is true.
func toBoolean(value string) (bool, bool) {
	value = present(value)
	if value == "" {
		return false, false
	}

	switch strings.ToLower(value) {
	case "true", "t", "yes", "y":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f > 0, true
	}

	return false, false
}
