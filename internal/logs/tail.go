package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	maxLineBytes = 1 << 20
	pollInterval = 250 * time.Millisecond
)

// TailOptions controls a Tail call. A negative Offset returns the last Limit
// lines. Follow waits up to Wait for new lines when none are available.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Match  string
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields no lines and offset zero.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}

	var res TailResult
	if opts.Offset < 0 {
		res, err = lastLines(path, opts.Limit, opts.Match)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Rotated or truncated underneath the reader.
			offset = 0
		}
		res, err = readFrom(path, offset, opts.Match)
	}
	if err != nil || len(res.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return res, err
	}
	return follow(ctx, path, res.Offset, opts.Wait, opts.Match)
}

func lastLines(path string, limit int, match string) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}

	var window []string
	offset, err := scan(file, func(line string) {
		if !matches(line, match) {
			return
		}
		if len(window) == limit {
			window = window[1:]
		}
		window = append(window, line)
	})
	if err != nil {
		return TailResult{}, err
	}
	return TailResult{Lines: window, Offset: offset}, nil
}

func readFrom(path string, offset int64, match string) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scan(file, func(line string) {
		if matches(line, match) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return TailResult{}, err
	}
	return TailResult{Lines: lines, Offset: offset + read}, nil
}

// scan feeds complete lines to fn and returns the bytes consumed. A trailing
// partial line is left for the next call.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64<<10)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			if len(line) <= maxLineBytes {
				fn(strings.TrimRight(line, "\r\n"))
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration, match string) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		res, err := readFrom(path, offset, match)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		if len(res.Lines) > 0 {
			return res, nil
		}
		offset = res.Offset
	}
}

func matches(line, match string) bool {
	return match == "" || strings.Contains(line, match)
}
