// xpackbench benchmarks XPACK compression and decompression on files,
// verifying every chunk round-trips, and optionally compares against
// other compressors.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	kflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pierrec/xxHash/xxHash32"
	flag "github.com/spf13/pflag"

	"github.com/andybalholm/xpack"
	"github.com/andybalholm/xpack/container"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: xpackbench [-123456789ahV] [-L LVL] [-s SIZE] [FILE]...
Benchmark XPACK compression and decompression on the specified FILEs.

Options:
  -1        fastest (worst) compression
  -9        slowest (best) compression
  -a        also benchmark other compressors for comparison
  -h        print this help
  -L LVL    compression level [1-9] (default 6)
  -s SIZE   chunk size (default 524288)
  -V        show version and legal information
`)
}

// A codec compresses a chunk into dst and decompresses it back. A zero
// length from compress means the chunk was incompressible.
type codec struct {
	name       string
	compress   func(dst, src []byte) int
	decompress func(dst, src []byte) error
}

func main() {
	fs := flag.NewFlagSet("xpackbench", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var digits [10]*bool
	for i := 1; i <= 9; i++ {
		d := strconv.Itoa(i)
		digits[i] = fs.BoolP(d, d, false, "")
	}
	all := fs.BoolP("all", "a", false, "")
	help := fs.BoolP("help", "h", false, "")
	level := fs.IntP("level", "L", 0, "")
	chunkSizeFlag := fs.StringP("chunk-size", "s", "", "")
	showVersion := fs.BoolP("version", "V", false, "")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stderr)
		os.Exit(1)
	}
	if *help {
		usage(os.Stdout)
		return
	}
	if *showVersion {
		fmt.Println("XPACK compression benchmark program, experimental version")
		return
	}

	lvl := 6
	for i := 1; i <= 9; i++ {
		if *digits[i] {
			lvl = i
		}
	}
	if *level != 0 {
		lvl = *level
	}
	chunkSize := container.DefaultChunkSize
	if *chunkSizeFlag != "" {
		n, err := strconv.Atoi(*chunkSizeFlag)
		if err != nil || n < container.MinChunkSize || n > container.MaxChunkSize {
			fmt.Fprintf(os.Stderr, "invalid chunk size: %q\n", *chunkSizeFlag)
			os.Exit(1)
		}
		chunkSize = n
	}

	comp, err := xpack.NewCompressor(chunkSize, lvl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	decomp := xpack.NewDecompressor()

	codecs := []codec{{
		name: "xpack",
		compress: func(dst, src []byte) int {
			return comp.Compress(dst, src)
		},
		decompress: func(dst, src []byte) error {
			_, err := decomp.Decompress(dst, src)
			return err
		},
	}}
	if *all {
		codecs = append(codecs, comparisonCodecs(lvl)...)
	}

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}

	fmt.Printf("Benchmarking XPACK compression:\n")
	fmt.Printf("\tChunk size: %d\n", chunkSize)
	fmt.Printf("\tCompression level: %d\n", lvl)

	for _, path := range files {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
			path = "(stdin)"
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Processing %s...\n", path)
		for _, c := range codecs {
			if err := benchmark(c, data, chunkSize); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}
		}
	}
}

func benchmark(c codec, data []byte, chunkSize int) error {
	compressed := make([]byte, chunkSize+chunkSize/2+256)
	decompressed := make([]byte, chunkSize)

	var totalIn, totalOut int64
	var compressTime, decompressTime time.Duration

	for off := 0; off < len(data); off += chunkSize {
		chunk := data[off:]
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}
		totalIn += int64(len(chunk))

		start := time.Now()
		n := c.compress(compressed[:cap(compressed)], chunk)
		compressTime += time.Since(start)

		if n == 0 || n >= len(chunk) {
			// Incompressible; would be stored raw.
			totalOut += int64(len(chunk))
			continue
		}
		totalOut += int64(n)

		out := decompressed[:len(chunk)]
		start = time.Now()
		err := c.decompress(out, compressed[:n])
		decompressTime += time.Since(start)
		if err != nil {
			return fmt.Errorf("%s: failed to decompress data: %v", c.name, err)
		}
		if xxHash32.Checksum(out, 0) != xxHash32.Checksum(chunk, 0) || !bytes.Equal(out, chunk) {
			return fmt.Errorf("%s: data did not decompress to original", c.name)
		}
	}

	if totalIn == 0 {
		fmt.Printf("\tFile was empty.\n")
		return nil
	}
	if compressTime <= 0 {
		compressTime = time.Microsecond
	}
	if decompressTime <= 0 {
		decompressTime = time.Microsecond
	}
	fmt.Printf("    %-8s %d => %d bytes (%.3f%%)\n", c.name, totalIn, totalOut,
		float64(totalOut)*100/float64(totalIn))
	fmt.Printf("\tCompression time: %v (%.1f MB/s)\n", compressTime.Round(time.Millisecond),
		float64(totalIn)/compressTime.Seconds()/1e6)
	fmt.Printf("\tDecompression time: %v (%.1f MB/s)\n", decompressTime.Round(time.Millisecond),
		float64(totalIn)/decompressTime.Seconds()/1e6)
	return nil
}

func comparisonCodecs(lvl int) []codec {
	zenc, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zdec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	var lzc lz4.Compressor

	return []codec{
		{
			name: "snappy",
			compress: func(dst, src []byte) int {
				out := snappy.Encode(dst[:0], src)
				return len(out)
			},
			decompress: func(dst, src []byte) error {
				_, err := snappy.Decode(dst, src)
				return err
			},
		},
		{
			name: "lz4",
			compress: func(dst, src []byte) int {
				n, err := lzc.CompressBlock(src, dst)
				if err != nil {
					return 0
				}
				return n
			},
			decompress: func(dst, src []byte) error {
				_, err := lz4.UncompressBlock(src, dst)
				return err
			},
		},
		{
			name: "zstd",
			compress: func(dst, src []byte) int {
				out := zenc.EncodeAll(src, dst[:0])
				return len(out)
			},
			decompress: func(dst, src []byte) error {
				_, err := zdec.DecodeAll(src, dst[:0])
				return err
			},
		},
		{
			name: "flate",
			compress: func(dst, src []byte) int {
				var buf bytes.Buffer
				w, err := kflate.NewWriter(&buf, lvl)
				if err != nil {
					return 0
				}
				w.Write(src)
				w.Close()
				if buf.Len() > len(dst) {
					return 0
				}
				return copy(dst, buf.Bytes())
			},
			decompress: func(dst, src []byte) error {
				r := kflate.NewReader(bytes.NewReader(src))
				defer r.Close()
				_, err := io.ReadFull(r, dst)
				return err
			},
		},
		{
			name: "brotli",
			compress: func(dst, src []byte) int {
				var buf bytes.Buffer
				w := brotli.NewWriterLevel(&buf, lvl)
				w.Write(src)
				w.Close()
				if buf.Len() > len(dst) {
					return 0
				}
				return copy(dst, buf.Bytes())
			},
			decompress: func(dst, src []byte) error {
				r := brotli.NewReader(bytes.NewReader(src))
				_, err := io.ReadFull(r, dst)
				return err
			},
		},
	}
}
