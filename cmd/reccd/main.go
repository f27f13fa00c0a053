// Command reccd loads exactly one plugin module and serves it over gRPC,
// mirroring reccd/daemon/daemon_servicer.py's run_daemon_server /
// run_daemon_until_complete boot sequence.
package main

import (
	"os"

	"github.com/umputun/go-flags"

	"github.com/reccd/reccd/internal/bootstrap"
	"github.com/reccd/reccd/internal/rlog"
)

var opts struct {
	Config     string `short:"c" long:"config" env:"RECCD_CONFIG" description:"path to the daemon's YAML config file"`
	Address    string `short:"a" long:"address" env:"RECCD_ADDRESS" description:"bind address (dns:, unix:, unix-abstract: or bare host:port)"`
	ModuleName string `short:"m" long:"module" env:"RECCD_MODULE_NAME" description:"plugin module to load"`
	ShmDir     string `long:"shm-dir" env:"RECCD_SHM_DIR" description:"directory for shared-memory segments (default: OS temp dir)"`
	Isolated   bool   `long:"isolated" env:"RECCD_ISOLATED" description:"load the plugin module isolated (reserved, no effect in-process)"`
	Dbg        bool   `long:"dbg" env:"RECCD_DEBUG" description:"enable debug logging"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	logger := rlog.New("reccd")
	if opts.Dbg {
		logger = rlog.NewDebug("reccd")
	}

	err := bootstrap.Run(bootstrap.Options{
		ConfigPath: opts.Config,
		Address:    opts.Address,
		ModuleName: opts.ModuleName,
		ShmDir:     opts.ShmDir,
		Isolated:   opts.Isolated,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}
