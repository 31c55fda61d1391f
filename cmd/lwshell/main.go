// Command lwshell runs Lacewing scripts and WebAssembly handlers against the
// net/http engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/config"
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/engine/netengine"
	"github.com/wippyai/lacewing/guest"
	"github.com/wippyai/lacewing/js"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to YAML configuration")
		script      = flag.String("script", "", "JavaScript file to run")
		wasmFile    = flag.String("wasm", "", "WebAssembly guest with on_<event> handlers")
		port        = flag.Int("port", 0, "Port the guest webserver listens on")
		interactive = flag.Bool("i", false, "Interactive console")
		schema      = flag.Bool("schema", false, "Print the configuration JSON schema and exit")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *schema {
		out, err := config.Schema()
		if err != nil {
			fail(err)
		}
		fmt.Println(string(out))
		return
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fail(err)
		}
		cfg = loaded
	}
	if *script != "" {
		cfg.Script = *script
	}
	if flag.NArg() > 0 && cfg.Script == "" {
		cfg.Script = flag.Arg(0)
	}
	if *wasmFile != "" {
		cfg.Wasm = *wasmFile
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if cfg.Script == "" && cfg.Wasm == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: lwshell [-config file.yaml] [-script file.js | file.js] [-wasm file.wasm -port n] [-i]")
		fmt.Fprintln(os.Stderr, "       lwshell -schema")
		os.Exit(1)
	}
	if cfg.Script != "" || cfg.Wasm != "" {
		if err := cfg.Validate(); err != nil {
			fail(err)
		}
	}

	if err := run(cfg, *interactive); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func run(cfg *config.Config, interactive bool) error {
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log.Named("engine"))
	binding.SetLogger(log.Named("binding"))
	js.SetLogger(log.Named("js"))
	guest.SetLogger(log.Named("guest"))

	store, err := cfg.SessionStore()
	if err != nil {
		return err
	}
	eng := netengine.NewWithConfig(&netengine.Config{Sessions: store, Logger: log.Named("netengine")})
	defer func() { _ = eng.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh, err := newShell(ctx, eng, cfg, log, os.Stdout)
	if err != nil {
		return err
	}
	defer sh.Close()

	// Scripts run on this goroutine, before the event loop takes over.
	if cfg.Script != "" {
		if err := sh.runFile(cfg.Script); err != nil {
			return err
		}
	}
	if cfg.Wasm != "" {
		if err := sh.loadGuest(cfg.Wasm); err != nil {
			return err
		}
	}

	if interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return sh.repl(ctx, os.Stdin)
		}
		return runConsole(ctx, sh)
	}

	log.Info("event loop started", zap.String("script", cfg.Script), zap.String("wasm", cfg.Wasm))
	return sh.loop(ctx)
}
