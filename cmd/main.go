package main

import (
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/blockalloc"
	"github.com/brettbedarf/simfs/config"
	"github.com/brettbedarf/simfs/filesystem"
	"github.com/brettbedarf/simfs/internal/util"
	"github.com/brettbedarf/simfs/requests"
	"github.com/brettbedarf/simfs/server"
)

//go:embed demo.yaml
var demoNodes []byte

const usage = `Usage: simfs [flags] <command> [MFT] [BAT]

Commands:
  create MFT BAT   format BAT, build a tree, save it to MFT
  load MFT BAT     load MFT and replay its blocks into BAT
  ls MFT BAT       load MFT and print a long listing
  mount MFT BAT DIR
                   load MFT and mount it read-only at DIR until interrupted
  format BAT       reset BAT to all free blocks

MFT is the master file table, BAT the block allocation table. Both default
to the configured paths.

Flags:
`

func main() {
	var (
		configPath string
		nodesDef   string
		verbose    int
		numBlocks  int
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (.yaml, .yml or .json)")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&nodesDef, "nodes", "", "Path to nodes def file used by create instead of the demo tree")
	flag.StringVar(&nodesDef, "n", "", "--nodes (shorthand)")
	flag.IntVar(&numBlocks, "blocks", config.DefaultNumBlocks, "Number of blocks in the allocation table")
	flag.IntVar(&numBlocks, "b", config.DefaultNumBlocks, "--blocks (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the mount point first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 3, "--verbose (shorthand)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Flags given explicitly win over the config file
	override := &config.ConfigOverride{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "verbose", "v":
			override.LogLvl = util.Pointer(verbose)
		case "blocks", "b":
			override.NumBlocks = util.Pointer(numBlocks)
		}
	})

	cfg := config.NewDefaultConfig()
	if configPath != "" {
		fileCfg, err := config.NewConfigFromFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simfs: %v\n", err)
			os.Exit(2)
		}
		cfg = fileCfg
	}
	cfg.Merge(override)

	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	cmd, args := flag.Arg(0), flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}
	var mnt string
	switch cmd {
	case "mount":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		cfg.MFTPath, cfg.TablePath, mnt = args[0], args[1], args[2]
	case "create", "load", "ls":
		if len(args) > 0 {
			cfg.MFTPath = args[0]
		}
		if len(args) > 1 {
			cfg.TablePath = args[1]
		}
	case "format":
		if len(args) > 0 {
			cfg.TablePath = args[0]
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Info().Str("command", cmd).Str("mft", cfg.MFTPath).Str("bat", cfg.TablePath).
		Int("blocks", cfg.NumBlocks).Str("nodes", nodesDef).Msg("SimFS starting")

	var err error
	switch cmd {
	case "create":
		err = runCreate(os.Stdout, cfg, nodesDef)
	case "load":
		err = runLoad(os.Stdout, cfg, false)
	case "ls":
		err = runLoad(os.Stdout, cfg, true)
	case "format":
		err = runFormat(os.Stdout, cfg)
	case "mount":
		err = runMount(cfg, mnt, umount)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func banner(w io.Writer, title string) {
	line := strings.Repeat("=", 35)
	fmt.Fprintf(w, "%s\n= %-31s =\n%s\n", line, title, line)
}

// withTable opens the configured table, runs fn and always releases the table
func withTable(cfg *config.Config, fn func(tbl *blockalloc.Table) error) error {
	tbl, err := blockalloc.Open(cfg.TablePath, cfg.NumBlocks)
	if err != nil {
		return err
	}
	var result *multierror.Error
	if err := fn(tbl); err != nil {
		result = multierror.Append(result, err)
	}
	if err := tbl.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func runFormat(w io.Writer, cfg *config.Config) error {
	return withTable(cfg, func(tbl *blockalloc.Table) error {
		if err := tbl.Format(); err != nil {
			return err
		}
		return tbl.Dump(w)
	})
}

func runCreate(w io.Writer, cfg *config.Config, nodesDef string) error {
	logger := util.GetLogger("main.create")

	var (
		reqs []simfs.NodeCreateRequest
		err  error
	)
	if nodesDef != "" {
		reqs, err = requests.ReadNodesFile(nodesDef)
	} else {
		reqs, err = requests.UnmarshalNodes(demoNodes, "yaml")
	}
	if err != nil {
		return fmt.Errorf("read node definitions: %w", err)
	}
	logger.Debug().Int("nodes", len(reqs)).Msg("Loaded node definitions")

	return withTable(cfg, func(tbl *blockalloc.Table) error {
		if err := tbl.Format(); err != nil {
			return err
		}
		if err := tbl.Dump(w); err != nil {
			return err
		}

		fs := filesystem.New(tbl)
		defer fs.Shutdown()

		banner(w, "Create root dir")
		if _, err := fs.CreateDir(simfs.NoInode, "/"); err != nil {
			return err
		}
		if err := fs.Debug(w); err != nil {
			return err
		}

		for _, req := range reqs {
			switch r := req.(type) {
			case *simfs.FileCreateRequest:
				banner(w, fmt.Sprintf("Create file %s", r.Path))
				if _, err := fs.AddFileNode(r); err != nil {
					return err
				}
			case *simfs.DirCreateRequest:
				banner(w, fmt.Sprintf("Create dir %s", r.Path))
				if _, err := fs.AddDirNode(r); err != nil {
					return err
				}
			}
			if err := fs.Debug(w); err != nil {
				return err
			}
			if _, ok := req.(*simfs.FileCreateRequest); ok {
				if err := tbl.Dump(w); err != nil {
					return err
				}
			}
		}

		if err := fs.Save(cfg.MFTPath); err != nil {
			return err
		}

		free, err := tbl.NumFree()
		if err != nil {
			return err
		}
		used := int64(cfg.NumBlocks-free) * simfs.BlockSize
		fmt.Fprintf(w, "Saved %d inodes to %s, %d of %d blocks in use (%s) in %s\n",
			fs.Len(), cfg.MFTPath, cfg.NumBlocks-free, cfg.NumBlocks, humanize.IBytes(uint64(used)), cfg.TablePath)
		return nil
	})
}

func runLoad(w io.Writer, cfg *config.Config, long bool) error {
	return withTable(cfg, func(tbl *blockalloc.Table) error {
		fs, err := filesystem.Load(cfg.MFTPath, tbl)
		if err != nil {
			if errors.Is(err, simfs.ErrLoadInconsistency) {
				return fmt.Errorf("%s does not fit a table of %d blocks: %w", cfg.MFTPath, cfg.NumBlocks, err)
			}
			return err
		}
		defer fs.Shutdown()

		if long {
			return fs.List(w)
		}
		if err := fs.Debug(w); err != nil {
			return err
		}
		return tbl.Dump(w)
	})
}

func runMount(cfg *config.Config, mnt string, umount bool) error {
	logger := util.GetLogger("main.mount")

	// Try unmount if requested
	if umount {
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	return withTable(cfg, func(tbl *blockalloc.Table) error {
		fs, err := filesystem.Load(cfg.MFTPath, tbl)
		if err != nil {
			return err
		}
		defer fs.Shutdown()

		srv := server.New(fs, tbl, cfg)
		if err := srv.Serve(mnt); err != nil {
			return fmt.Errorf("mount %s: %w", mnt, err)
		}

		// Setup signal handling for graceful shutdown
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

		logger.Info().Str("mountpoint", mnt).Int("nodes", fs.Len()).Msg("Filesystem mounted successfully")

		// Wait for termination signal
		sig := <-signalChan
		logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

		if err := srv.Unmount(); err != nil {
			return fmt.Errorf("unmount %s: %w", mnt, err)
		}
		logger.Info().Msg("Filesystem unmounted successfully")
		return nil
	})
}
