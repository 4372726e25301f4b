// xpack is a file compression and decompression program using the
// XPACK format. When invoked as xunpack it decompresses by default.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/apex/log"
	clih "github.com/apex/log/handlers/cli"
	flag "github.com/spf13/pflag"

	"github.com/andybalholm/xpack"
	"github.com/andybalholm/xpack/container"
)

const (
	exitOK      = 0
	exitError   = 1
	exitWarning = 2
)

type options struct {
	toStdout   bool
	decompress bool
	force      bool
	keep       bool
	level      int
	chunkSize  uint32
	suffix     string
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s [-123456789cdfhkV] [-L LVL] [-s SIZE] [-S SUF] [FILE]...
Compress or decompress the specified FILEs.

Options:
  -1        fastest (worst) compression
  -9        slowest (best) compression
  -c        write to standard output
  -d        decompress
  -f        overwrite existing output files
  -h        print this help
  -k        don't delete input files
  -L LVL    compression level [1-9] (default 6)
  -s SIZE   chunk size (default 524288)
  -S SUF    use suffix .SUF instead of .xpack
  -V        show version and legal information

NOTICE: this program is currently experimental, and the on-disk format
is not yet stable!
`, invocationName())
}

func version() {
	fmt.Print(`xpack compression program, experimental version

This program is free software which may be modified and/or redistributed
under the terms of the MIT license.  There is NO WARRANTY, to the extent
permitted by law.  See the COPYING file for details.
`)
}

func invocationName() string {
	return filepath.Base(os.Args[0])
}

func isXunpack() bool {
	name := invocationName()
	return name == "xunpack" || name == "xunpack.exe"
}

func main() {
	log.SetHandler(clih.New(os.Stderr))

	opts := options{
		decompress: isXunpack(),
		level:      6,
		chunkSize:  container.DefaultChunkSize,
		suffix:     "xpack",
	}

	fs := flag.NewFlagSet(invocationName(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var digits [10]*bool
	for i := 1; i <= 9; i++ {
		d := strconv.Itoa(i)
		digits[i] = fs.BoolP(d, d, false, "")
	}
	toStdout := fs.BoolP("stdout", "c", false, "")
	decompress := fs.BoolP("decompress", "d", false, "")
	force := fs.BoolP("force", "f", false, "")
	help := fs.BoolP("help", "h", false, "")
	keep := fs.BoolP("keep", "k", false, "")
	level := fs.IntP("level", "L", 0, "")
	chunkSize := fs.StringP("chunk-size", "s", "", "")
	suffix := fs.StringP("suffix", "S", "", "")
	showVersion := fs.BoolP("version", "V", false, "")

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Errorf("%v", err)
		usage(os.Stderr)
		os.Exit(exitError)
	}
	if *help {
		usage(os.Stdout)
		return
	}
	if *showVersion {
		version()
		return
	}
	for i := 1; i <= 9; i++ {
		if *digits[i] {
			opts.level = i
		}
	}
	if *level != 0 {
		if *level < xpack.MinLevel || *level > xpack.MaxLevel {
			log.Errorf("invalid compression level: %d", *level)
			os.Exit(exitError)
		}
		opts.level = *level
	}
	if *chunkSize != "" {
		n, err := parseChunkSize(*chunkSize)
		if err != nil {
			log.Errorf("invalid chunk size: %q", *chunkSize)
			os.Exit(exitError)
		}
		opts.chunkSize = n
	}
	if *suffix != "" {
		opts.suffix = strings.TrimPrefix(*suffix, ".")
	}
	opts.toStdout = *toStdout
	opts.decompress = opts.decompress || *decompress
	opts.force = *force
	opts.keep = *keep

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}

	ret := exitOK
	if opts.decompress {
		d := xpack.NewDecompressor()
		for _, path := range files {
			ret |= decompressFile(d, path, &opts)
		}
	} else {
		c, err := xpack.NewCompressor(int(opts.chunkSize), opts.level)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(exitError)
		}
		for _, path := range files {
			ret |= compressFile(c, path, &opts)
		}
	}
	if ret != exitOK && ret != exitWarning {
		ret = exitError
	}
	os.Exit(ret)
}

func parseChunkSize(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < container.MinChunkSize || n > container.MaxChunkSize {
		return 0, fmt.Errorf("chunk size out of range")
	}
	return uint32(n), nil
}

// stripSuffix returns path without its .suffix, or "" if it does not
// carry the suffix.
func stripSuffix(path, suffix string) string {
	base := filepath.Base(path)
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 || base[dot+1:] != suffix {
		return ""
	}
	return path[:len(path)-(len(base)-dot)]
}

func hasSuffix(path, suffix string) bool {
	return stripSuffix(path, suffix) != ""
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// checkInputFile skips directories, other non-regular files, and
// multiply-hard-linked files (unless forced).
func checkInputFile(path string, fi os.FileInfo, allowHardLinks bool) int {
	if !fi.Mode().IsRegular() {
		kind := "not a regular file"
		if fi.IsDir() {
			kind = "a directory"
		}
		log.Warnf("%s is %s -- skipping", path, kind)
		return exitWarning
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok && st.Nlink > 1 && !allowHardLinks {
		log.Warnf("%s has multiple hard links -- skipping (use -f to process anyway)", path)
		return exitWarning
	}
	return exitOK
}

func restoreMetadata(path string, fi os.FileInfo) {
	if err := os.Chmod(path, fi.Mode().Perm()); err != nil {
		log.Warnf("%s: unable to preserve mode", path)
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		if err := os.Chown(path, int(st.Uid), int(st.Gid)); err != nil {
			log.Warnf("%s: unable to preserve owner and group", path)
		}
	}
	if err := os.Chtimes(path, fi.ModTime(), fi.ModTime()); err != nil {
		log.Warnf("%s: unable to preserve timestamps", path)
	}
}

func openOutput(path string, force bool) (*os.File, error) {
	if path == "" {
		return os.Stdout, nil
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	return os.OpenFile(path, flags, 0644)
}

func compressFile(c *xpack.Compressor, path string, opts *options) int {
	var newpath string
	stdio := path == "-"
	if !stdio && !opts.toStdout {
		if !opts.force && hasSuffix(path, opts.suffix) {
			log.Warnf("%s: already has .%s suffix -- skipping", path, opts.suffix)
			return exitWarning
		}
		newpath = path + "." + opts.suffix
	}

	in := os.Stdin
	var fi os.FileInfo
	if !stdio {
		f, err := os.Open(path)
		if err != nil {
			log.Errorf("%v", err)
			return exitError
		}
		defer f.Close()
		in = f
		fi, err = f.Stat()
		if err != nil {
			log.Errorf("%s: unable to stat file", path)
			return exitError
		}
		if ret := checkInputFile(path, fi, opts.force || newpath == ""); ret != exitOK {
			return ret
		}
	}

	out, err := openOutput(newpath, opts.force)
	if err != nil {
		log.Errorf("%v", err)
		return exitError
	}
	if newpath == "" && !opts.force && isTerminal(out) {
		log.Errorf("Refusing to write compressed data to terminal. Use -f to override.\nFor help, use -h.")
		return exitError
	}

	err = container.Pack(out, in, c, opts.chunkSize)
	if newpath != "" {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		log.Errorf("%s: %v", displayName(path), err)
		if newpath != "" {
			os.Remove(newpath)
		}
		return exitError
	}
	if newpath != "" && fi != nil {
		restoreMetadata(newpath, fi)
		if !opts.keep {
			os.Remove(path)
		}
	}
	return exitOK
}

func decompressFile(d *xpack.Decompressor, path string, opts *options) int {
	var newpath string
	stdio := path == "-"
	if !stdio && !opts.toStdout {
		newpath = stripSuffix(path, opts.suffix)
		if newpath == "" {
			log.Warnf("%q does not end with the .%s suffix -- skipping", path, opts.suffix)
			return exitWarning
		}
	}

	in := os.Stdin
	var fi os.FileInfo
	if !stdio {
		f, err := os.Open(path)
		if err != nil {
			log.Errorf("%v", err)
			return exitError
		}
		defer f.Close()
		in = f
		fi, err = f.Stat()
		if err != nil {
			log.Errorf("%s: unable to stat file", path)
			return exitError
		}
		if ret := checkInputFile(path, fi, opts.force || newpath == ""); ret != exitOK {
			return ret
		}
	}
	if !opts.force && isTerminal(in) {
		log.Errorf("Refusing to read compressed data from terminal.  Use -f to override.\nFor help, use -h.")
		return exitError
	}

	hdr, err := container.ReadHeader(in)
	if err != nil {
		log.Errorf("%s: %v", displayName(path), err)
		return exitError
	}

	out, err := openOutput(newpath, opts.force)
	if err != nil {
		log.Errorf("%v", err)
		return exitError
	}

	err = container.Unpack(out, in, d, hdr)
	if newpath != "" {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		log.Errorf("%s: %v", displayName(path), err)
		if newpath != "" {
			os.Remove(newpath)
		}
		return exitError
	}
	if newpath != "" && fi != nil {
		restoreMetadata(newpath, fi)
		if !opts.keep {
			os.Remove(path)
		}
	}
	return exitOK
}

func displayName(path string) string {
	if path == "-" {
		return "(stdin)"
	}
	return path
}
