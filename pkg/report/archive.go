package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/lkarlslund/gwprobe/pkg/cache"
)

const compressedSuffix = ".zst"

// Save writes r as indented JSON, zstd-compressed when path ends in .zst.
func Save(path string, r *Result) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("report path is empty")
	}
	if !strings.HasSuffix(path, compressedSuffix) {
		if err := cache.SaveJSON(path, r); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	b = enc.EncodeAll(append(b, '\n'), nil)
	_ = enc.Close()
	if err := cache.WriteAtomic(path, b); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads a report written by Save. A missing file is cache.ErrNotFound.
func Load(path string) (*Result, error) {
	var r Result
	if !strings.HasSuffix(path, compressedSuffix) {
		if err := cache.LoadJSON(path, &r); err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load report: %w", err)
		}
		return &r, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	b, err = dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress report: %w", err)
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
