// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// Compression specifies the message compression algorithm.
type Compression string

const (
	// CompressionSnappy uses Snappy compression (good balance, recommended).
	CompressionSnappy Compression = "snappy"

	// CompressionGzip uses Gzip compression.
	CompressionGzip Compression = "gzip"

	// CompressionLz4 uses LZ4 compression.
	CompressionLz4 Compression = "lz4"

	// CompressionZstd uses Zstandard compression.
	CompressionZstd Compression = "zstd"

	// CompressionNone disables compression.
	CompressionNone Compression = "none"
)

var codecs = map[Compression]kgo.CompressionCodec{
	CompressionSnappy: kgo.SnappyCompression(),
	CompressionGzip:   kgo.GzipCompression(),
	CompressionLz4:    kgo.Lz4Compression(),
	CompressionZstd:   kgo.ZstdCompression(),
	CompressionNone:   kgo.NoCompression(),
}

// opt returns the batch compression option. Empty means no compression.
func (c Compression) opt() kgo.Opt {
	codec, ok := codecs[c]
	if !ok {
		codec = kgo.NoCompression()
	}
	return kgo.ProducerBatchCompression(codec)
}

func (c Compression) validate() error {
	if _, ok := codecs[c]; ok || c == "" {
		return nil
	}

	names := make([]string, 0, len(codecs))
	for _, k := range slices.Sorted(maps.Keys(codecs)) {
		names = append(names, string(k))
	}
	return errors.Join(tether.ErrValidation,
		fmt.Errorf("compression codec '%s' is invalid: must be '%s' or empty", c, strings.Join(names, "', '")))
}
