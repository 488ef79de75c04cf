package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/skipor/twemcached/config"
	"github.com/skipor/twemcached/engine"
	"github.com/skipor/twemcached/internal/tag"
	"github.com/skipor/twemcached/log"
	"github.com/skipor/twemcached/server"

	"github.com/rcrowley/go-metrics"
)

const usage = `
Config values merge rules:
1) config file value overrides default
2) command line value overrides any
Options:
`

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s", usage)
		flag.PrintDefaults()
	}
}

func main() {
	conf := buildConfig()
	l := log.NewLogger(conf.LogLevel, conf.LogDestination)

	e := engine.New(conf.SlabOptions, metrics.NewRegistry())
	s := server.New(conf, e)
	s.Log = l

	l.Debugf("Config: %#v", conf)
	if tag.Debug {
		l.Warn("Using debug build. It has more runtime checks and large perfomance overhead.")
	}

	l.Infof("Serve on %s (%s flavor).", s.Addr, conf.Flavor)
	err := s.ListenAndServe()
	l.Fatal("Serve error: ", err)
}

// buildConfig parses command flags, reads a config file if one was given,
// and merges: file overrides default, flags override file.
func buildConfig() *config.Config {
	l := log.NewLogger(log.DebugLevel, os.Stderr)
	flg := parseFlags()

	fileConf := config.Default()
	if flg.ConfigPath != "" {
		data, err := ioutil.ReadFile(flg.ConfigPath)
		if err != nil {
			l.Fatal("config file read error: ", err)
		}
		if err := json.Unmarshal(data, fileConf); err != nil {
			l.Fatal("config parse error: ", err)
		}
	}
	config.Merge(fileConf, &flg.Input)

	parsed, err := config.Parse(fileConf)
	if err != nil {
		l.Fatal("config validate error: ", err)
	}
	return parsed
}

type flags struct {
	ConfigPath string
	config.Input
}

// NOTE: without "only stdlib" constraint I would reach for
// github.com/spf13/viper and github.com/spf13/cobra here, as the teacher's
// own main.go notes. Kept to flag+encoding/json for the same reason.
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigPath, "config", "", "path to json config")

	def := config.Default()
	str := func(usage string, defVal string) string {
		return fmt.Sprintf("%s (default %q)", usage, defVal)
	}
	num := func(usage string, defVal int) string {
		return fmt.Sprintf("%s (default %v)", usage, defVal)
	}

	flag.StringVar(&f.Host, "host", "", str("host address to bind", def.Host))
	flag.IntVar(&f.Port, "port", 0, num("port num", def.Port))
	flag.StringVar(&f.Flavor, "flavor", "", str("wire protocol: memcache or resp", def.Flavor))
	flag.StringVar(&f.LogDestination, "log-destination", "", str("log destination: stderr, stdout or file path", def.LogDestination))
	flag.StringVar(&f.LogLevel, "log-level", "", str("log level: debug, info, warn, error, fatal", def.LogLevel))

	flag.StringVar(&f.SlabSize, "slab-size", "", str("slab size: 1m, 2m", def.SlabSize))
	flag.StringVar(&f.SlabMaxBytes, "slab-maxbytes", "", str("total slab memory: 64m, 2g", def.SlabMaxBytes))
	flag.StringVar(&f.SlabEvictOpt, "slab-evict-opt", "", str("eviction policy: none, random, lru", def.SlabEvictOpt))
	flag.StringVar(&f.SlabChunkSize, "slab-chunk-size", "", str("item-class growth factor", def.SlabChunkSize))
	flag.StringVar(&f.SlabMinItem, "slab-min-item", "", str("smallest item class: 48b", def.SlabMinItem))
	flag.IntVar(&f.SlabHashPower, "slab-hash-power", 0, num("initial hash table size as a power of two", def.SlabHashPower))

	prealloc := flag.Bool("slab-prealloc", false, "preallocate every slab page at startup")
	useFreeq := flag.Bool("slab-use-freeq", false, "reuse freed chunks via the per-class free queue")
	useCAS := flag.Bool("slab-use-cas", false, "store an 8-byte CAS value with every item")

	flag.StringVar(&f.BufInitSize, "buf-init-size", "", str("initial per-connection buffer size", def.BufInitSize))
	flag.IntVar(&f.DbufMaxPower, "dbuf-max-power", 0, num("max connection buffer doublings", def.DbufMaxPower))
	flag.IntVar(&f.RequestPoolsize, "request-poolsize", 0, num("pooled Request objects", def.RequestPoolsize))
	flag.IntVar(&f.BufSockPoolsize, "buf-sock-poolsize", 0, num("pooled connection buffers", def.BufSockPoolsize))
	flag.Parse()

	if flagWasSet("slab-prealloc") {
		f.Input.SlabPrealloc = prealloc
	}
	if flagWasSet("slab-use-freeq") {
		f.Input.SlabUseFreeq = useFreeq
	}
	if flagWasSet("slab-use-cas") {
		f.Input.SlabUseCAS = useCAS
	}
	return f
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}
