package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFileHints(t *testing.T) {
	tests := []struct {
		path string
		want FileHints
	}{
		{"flights-2024-05.csv", FileHints{Year: "2024", Month: "05"}},
		{"flights-2024-05.csv.gz", FileHints{Year: "2024", Month: "05"}},
		{"flights-2024-05.zip", FileHints{Year: "2024", Month: "05"}},
		{"/data/archive/Flights-2019-11.ZIP", FileHints{Year: "2019", Month: "11"}},
		{"flights-2024.csv", FileHints{Year: "2024"}},
		{"ontime-2023.csv.gz", FileHints{Year: "2023"}},
		{"flights.csv", FileHints{}},
		{"flights-2024-5.csv", FileHints{}},
		{"On_Time_2024_03.csv", FileHints{}},
		{"flights-2024-05-extra.csv", FileHints{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFileHints(tt.path))
		})
	}
}

func TestRoutePrecedence(t *testing.T) {
	router := NewRouter("flights", true)

	tests := []struct {
		name      string
		hints     FileHints
		timestamp string
		want      string
	}{
		{"year and month win over timestamp", FileHints{Year: "2024", Month: "05"}, "2019-03-01T00:00:00", "flights-2024-05"},
		{"year alone wins over timestamp", FileHints{Year: "2024"}, "2019-03-01T00:00:00", "flights-2024"},
		{"timestamp year when no hints", FileHints{}, "2019-03-15T10:00:00", "flights-2019"},
		{"date-only timestamp", FileHints{}, "2021-12-31", "flights-2021"},
		{"unparseable timestamp is unroutable", FileHints{}, "NOTADATE", ""},
		{"empty timestamp is unroutable", FileHints{}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Route(tt.hints, tt.timestamp))
		})
	}
}

func TestRouteFixedIndex(t *testing.T) {
	router := NewRouter("flights", false)

	assert.Equal(t, "flights", router.Route(FileHints{Year: "2024", Month: "05"}, "2019-03-01"))
	assert.Equal(t, "flights", router.Route(FileHints{}, ""))
}

func TestPattern(t *testing.T) {
	assert.Equal(t, "flights-*", NewRouter("flights", true).Pattern())
	assert.Equal(t, "flights", NewRouter("flights", false).Pattern())
	assert.Equal(t, "ontime-*", NewRouter("ontime", true).Pattern())
}
