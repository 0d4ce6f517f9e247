package market

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FileFetcher serves frames from a JSON document, used for offline CLI runs
// and fixtures. The document is either a single Frame or an array of Frames.
type FileFetcher struct {
	frames map[string]*Frame
}

// LoadFileFetcher reads and validates every frame in path
func LoadFileFetcher(path string) (*FileFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read market data file: %w", err)
	}

	var frames []*Frame
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, fmt.Errorf("failed to parse market data file: %w", err)
		}
	} else {
		var single Frame
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse market data file: %w", err)
		}
		frames = append(frames, &single)
	}

	return NewStaticFetcher(frames...)
}

// NewStaticFetcher serves the given frames. Every frame must validate.
func NewStaticFetcher(frames ...*Frame) (*FileFetcher, error) {
	f := &FileFetcher{frames: make(map[string]*Frame, len(frames))}
	for _, frame := range frames {
		if err := frame.Validate(); err != nil {
			return nil, err
		}
		f.frames[fileKey(frame.Symbol, frame.Timeframe)] = frame
	}
	return f, nil
}

// FetchOHLCV implements Fetcher. limit trims to the most recent bars.
func (f *FileFetcher) FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, ok := f.frames[fileKey(symbol, tf)]
	if !ok || frame.Len() == 0 {
		return nil, ErrNoData
	}
	if limit > 0 {
		return frame.Tail(limit), nil
	}
	return frame, nil
}

func fileKey(symbol string, tf Timeframe) string {
	return strings.ToUpper(symbol) + "|" + string(tf)
}
