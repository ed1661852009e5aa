// Command server runs a FileAccessServer, following the same "read config file,
// then apply flag overrides, then run" shape as the ancestor's drone/main.go.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/Alexlaaa/RemoteFileAccessSystem/config"
	"github.com/Alexlaaa/RemoteFileAccessSystem/server"
)

func main() {
	log.Println("Remote File Access Service")

	cfg, err := config.ReadServerConfigFile(configFlagValue(os.Args[1:]))
	if err != nil {
		log.Fatalf("cannot read server config: %v", err)
	}

	fs := flag.NewFlagSet("server", flag.ExitOnError)
	fs.String("config", "", "path to a server config file (JSON or YAML); omit to use defaults")
	config.BindServerFlags(fs, &cfg)
	_ = fs.Parse(os.Args[1:])

	log.Printf("serving %s on UDP port %d (strategy=%s, workers=%d)", cfg.FilesystemRoot, cfg.ListenPort, cfg.Strategy, cfg.WorkerPoolSize)

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("cannot start server: %v", err)
	}
	defer srv.Close()

	if err := srv.Serve(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
	log.Println("server shut down cleanly")
}

// configFlagValue extracts -config/--config's value from args without a full
// flag.Parse, since the config file must be read before the rest of the flags
// (whose defaults come from it) can even be registered.
func configFlagValue(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(a) > 8 && a[:8] == "-config=":
			return a[8:]
		case len(a) > 9 && a[:9] == "--config=":
			return a[9:]
		}
	}
	return ""
}
