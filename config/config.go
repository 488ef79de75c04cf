// Package config loads twemcached's setup-time configuration: the size
// strings, JSON file and command-line flags feeding slab.Options and the
// listener's wire flavor (spec.md §6.3), in the same
// default-then-file-then-flag merge style as the teacher's
// cmd/memcached/config package.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/twemcached/internal/util"
	"github.com/skipor/twemcached/log"
	"github.com/skipor/twemcached/slab"
)

// Flavor selects which wire protocol a listener speaks.
type Flavor string

const (
	FlavorMemcache Flavor = "memcache"
	FlavorResp     Flavor = "resp"
)

// Input is the raw, string-typed configuration as read from a JSON file
// or command-line flags; zero-value fields mean "not set" so Merge can
// tell them apart from a real override.
type Input struct {
	Port           int    `json:"port,omitempty"`
	Host           string `json:"host,omitempty"`
	Flavor         string `json:"flavor,omitempty"`
	LogDestination string `json:"log-destination,omitempty"`
	LogLevel       string `json:"log-level,omitempty"`

	SlabSize      string `json:"slab-size,omitempty"`
	SlabMaxBytes  string `json:"slab-maxbytes,omitempty"`
	SlabPrealloc  *bool  `json:"slab-prealloc,omitempty"`
	SlabEvictOpt  string `json:"slab-evict-opt,omitempty"`
	SlabUseFreeq  *bool  `json:"slab-use-freeq,omitempty"`
	SlabUseCAS    *bool  `json:"slab-use-cas,omitempty"`
	SlabChunkSize string `json:"slab-chunk-size,omitempty"`
	SlabMinItem   string `json:"slab-min-item,omitempty"`
	SlabHashPower int    `json:"slab-hash-power,omitempty"`

	BufInitSize     string `json:"buf-init-size,omitempty"`
	DbufMaxPower    int    `json:"dbuf-max-power,omitempty"`
	RequestPoolsize int    `json:"request-poolsize,omitempty"`
	BufSockPoolsize int    `json:"buf-sock-poolsize,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty"`
}

func Default() *Input {
	t := true
	return &Input{
		Port:           11211,
		Host:           "",
		Flavor:         string(FlavorMemcache),
		LogDestination: "stderr",
		LogLevel:       "info",

		SlabSize:      "1m",
		SlabMaxBytes:  "64m",
		SlabPrealloc:  &t,
		SlabEvictOpt:  "random",
		SlabUseFreeq:  &t,
		SlabUseCAS:    &t,
		SlabChunkSize: "1.25",
		SlabMinItem:   "48b",
		SlabHashPower: 16,

		BufInitSize:     "4k",
		DbufMaxPower:    16,
		RequestPoolsize: 4096,
		BufSockPoolsize: 4096,
	}
}

// Config is the fully parsed, typed configuration ready to drive
// engine.New and a listener.
type Config struct {
	Addr           string
	Flavor         Flavor
	LogDestination io.Writer
	LogLevel       log.Level

	SlabOptions slab.Options

	BufInitSize     int
	DbufMaxPower    uint
	RequestPoolsize int
	BufSockPoolsize int
}

// Parse turns an Input into a Config, validating and unit-converting
// every size/option string.
func Parse(in *Input) (*Config, error) {
	c := &Config{}
	var err error

	c.LogDestination, err = logDestination(in.LogDestination)
	if err != nil {
		return nil, stackerr.Newf("log destination open error: %v", err)
	}
	c.LogLevel, err = log.LevelFromString(in.LogLevel)
	if err != nil {
		return nil, stackerr.Newf("log level parse error: %v", err)
	}
	switch Flavor(in.Flavor) {
	case FlavorMemcache, FlavorResp:
		c.Flavor = Flavor(in.Flavor)
	default:
		return nil, stackerr.Newf("unknown protocol flavor: %q", in.Flavor)
	}
	c.Addr = net.JoinHostPort(in.Host, strconv.Itoa(in.Port))

	opt := slab.DefaultOptions()
	slabSize, err := parseSize(in.SlabSize)
	if err != nil {
		return nil, stackerr.Newf("slab-size parse error: %v", err)
	}
	opt.SlabSize = int(slabSize)

	maxBytes, err := parseSize(in.SlabMaxBytes)
	if err != nil {
		return nil, stackerr.Newf("slab-maxbytes parse error: %v", err)
	}
	opt.SlabMaxBytes = int(maxBytes)

	minItem, err := parseSize(in.SlabMinItem)
	if err != nil {
		return nil, stackerr.Newf("slab-min-item parse error: %v", err)
	}
	growth, err := strconv.ParseFloat(in.SlabChunkSize, 64)
	if err != nil {
		return nil, stackerr.Newf("slab-chunk-size parse error: %v", err)
	}
	opt.Profile = slab.DefaultProfile(int(minItem), opt.SlabSize-64, growth)

	if in.SlabPrealloc != nil {
		opt.Prealloc = *in.SlabPrealloc
	}
	if in.SlabUseFreeq != nil {
		opt.UseFreeQ = *in.SlabUseFreeq
	}
	if in.SlabUseCAS != nil {
		opt.UseCAS = *in.SlabUseCAS
	}
	if in.SlabHashPower > 0 {
		opt.HashPower = uint(in.SlabHashPower)
	}
	opt.EvictPolicy, err = parseEvictOpt(in.SlabEvictOpt)
	if err != nil {
		return nil, err
	}
	c.SlabOptions = opt

	bufInit, err := parseSize(in.BufInitSize)
	if err != nil {
		return nil, stackerr.Newf("buf-init-size parse error: %v", err)
	}
	c.BufInitSize = int(bufInit)
	c.DbufMaxPower = uint(in.DbufMaxPower)
	c.RequestPoolsize = in.RequestPoolsize
	c.BufSockPoolsize = in.BufSockPoolsize
	return c, nil
}

func parseEvictOpt(s string) (slab.EvictPolicy, error) {
	switch strings.ToLower(s) {
	case "none":
		return slab.EvictNone, nil
	case "random":
		return slab.EvictRandom, nil
	case "lru":
		return slab.EvictLRU, nil
	default:
		return 0, stackerr.Newf("unknown slab-evict-opt: %q", s)
	}
}

// Merge overwrites def's fields with override's non-zero fields, the
// same "file then flag" layering the teacher's cmd/memcached/config uses.
func Merge(def, override *Input) {
	defVal := reflect.ValueOf(def).Elem()
	overrideVal := reflect.ValueOf(override).Elem()
	for i, end := 0, defVal.NumField(); i < end; i++ {
		ov := overrideVal.Field(i)
		if util.IsZeroVal(ov) {
			continue
		}
		defVal.Field(i).Set(ov)
	}
}

func Marshal(in *Input) []byte {
	data, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	return data
}

// parseSize parses strings like "10g", "128m", "1024k", "1000000b".
func parseSize(s string) (int64, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}
	sep := len(s) - 1
	sizeStr := s[:sep]
	unit := s[sep:]
	var exponent uint32
	switch strings.ToLower(unit) {
	case "b":
		exponent = 0
	case "k":
		exponent = 10
	case "m":
		exponent = 20
	case "g":
		exponent = 30
	default:
		return 0, fmt.Errorf("invalid size unit %q, only b/k/m/g allowed", unit)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("size parse error: %v", err)
	}
	return size << exponent, nil
}

func logDestination(dest string) (io.Writer, error) {
	switch strings.ToLower(dest) {
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		return os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
}
