package flightdata

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// LineCounter counts the raw lines of a data file, header included.
type LineCounter interface {
	CountLines(path string) (int64, error)
}

// NewLineCounter returns the default counter: system tools first, in-process
// counting when they fail or are unavailable.
func NewLineCounter() LineCounter {
	return fallbackLineCounter{primary: ShellLineCounter{}, fallback: BufferedLineCounter{}}
}

type fallbackLineCounter struct {
	primary  LineCounter
	fallback LineCounter
}

func (f fallbackLineCounter) CountLines(path string) (int64, error) {
	count, err := f.primary.CountLines(path)
	if err == nil {
		return count, nil
	}
	return f.fallback.CountLines(path)
}

// ShellLineCounter counts with the system wc, gunzip and unzip tools.
type ShellLineCounter struct{}

func (ShellLineCounter) CountLines(path string) (int64, error) {
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, ".zip"):
		entry, err := zipCSVEntry(path)
		if err != nil {
			return 0, err
		}
		return pipedLineCount(exec.Command("unzip", "-p", path, entry))

	case strings.HasSuffix(lower, ".gz"):
		return pipedLineCount(exec.Command("gunzip", "-c", path))

	default:
		out, err := exec.Command("wc", "-l", path).Output()
		if err != nil {
			return 0, fmt.Errorf("wc -l %s: %w", path, err)
		}
		fields := strings.Fields(string(out))
		if len(fields) == 0 {
			return 0, fmt.Errorf("unexpected wc output %q", string(out))
		}
		return strconv.ParseInt(fields[0], 10, 64)
	}
}

// zipCSVEntry lists the archive and returns its first CSV entry name.
func zipCSVEntry(path string) (string, error) {
	out, err := exec.Command("unzip", "-Z1", path).Output()
	if err != nil {
		return "", fmt.Errorf("listing entries of %s: %w", path, err)
	}
	for _, name := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.HasSuffix(strings.ToLower(name), ".csv") {
			return name, nil
		}
	}
	return "", fmt.Errorf("no CSV entry found in %s", path)
}

// pipedLineCount streams the producer's stdout through wc -l.
func pipedLineCount(producer *exec.Cmd) (int64, error) {
	wc := exec.Command("wc", "-l")

	pipe, err := producer.StdoutPipe()
	if err != nil {
		return 0, err
	}
	wc.Stdin = pipe

	if err := producer.Start(); err != nil {
		return 0, err
	}

	out, err := wc.Output()
	if err != nil {
		producer.Wait()
		return 0, err
	}
	if err := producer.Wait(); err != nil {
		return 0, err
	}

	return strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
}

// BufferedLineCounter decompresses in-process and counts newlines.
type BufferedLineCounter struct{}

func (BufferedLineCounter) CountLines(path string) (int64, error) {
	source, err := openStream(path)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	buf := make([]byte, 256*1024)
	var count int64
	for {
		n, err := source.Read(buf)
		count += int64(bytes.Count(buf[:n], []byte{'\n'}))
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// CountTotalRecords sums the data rows across files, one header line deducted
// from each. Files that cannot be counted are logged and contribute zero.
func CountTotalRecords(logger *zap.Logger, counter LineCounter, files []string) int64 {
	var total int64
	for _, path := range files {
		lines, err := counter.CountLines(path)
		if err != nil {
			logger.Warn("could not count lines", zap.String("file", path), zap.Error(err))
			continue
		}
		if lines > 0 {
			total += lines - 1
		}
	}
	return total
}
