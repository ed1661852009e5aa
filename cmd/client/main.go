// Command client drives a ClientService against a running server, following
// the same config-file-then-flags composition as cmd/server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Alexlaaa/RemoteFileAccessSystem/client"
	"github.com/Alexlaaa/RemoteFileAccessSystem/config"
)

func main() {
	cfg, err := config.ReadClientConfigFile(configFlagValue(os.Args[1:]))
	if err != nil {
		log.Fatalf("cannot read client config: %v", err)
	}

	fs := flag.NewFlagSet("client", flag.ExitOnError)
	fs.String("config", "", "path to a client config file (JSON or YAML); omit to use defaults")
	config.BindClientFlags(fs, &cfg)
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		log.Fatal("usage: client [flags] <read|write-insert|write-delete|file-info|monitor> <path> [args...]")
	}

	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("cannot start client: %v", err)
	}
	defer c.Close()

	if err := run(c, args); err != nil {
		log.Fatal(err)
	}
}

func run(c *client.ClientService, args []string) error {
	switch args[0] {
	case "read":
		if len(args) != 4 {
			return fmt.Errorf("usage: read <path> <offset> <length>")
		}
		offset, length := mustParseUint(args[2]), mustParseUint(args[3])
		content, err := c.Read(args[1], offset, length)
		if err != nil {
			return err
		}
		fmt.Println(string(content))

	case "write-insert":
		if len(args) != 4 {
			return fmt.Errorf("usage: write-insert <path> <offset> <text>")
		}
		offset := mustParseUint(args[2])
		return c.WriteInsert(args[1], offset, []byte(args[3]))

	case "write-delete":
		if len(args) != 4 {
			return fmt.Errorf("usage: write-delete <path> <offset> <length>")
		}
		offset, length := mustParseUint(args[2]), mustParseUint(args[3])
		return c.WriteDelete(args[1], offset, length)

	case "file-info":
		if len(args) != 2 {
			return fmt.Errorf("usage: file-info <path>")
		}
		info, err := c.FileInfo(args[1])
		if err != nil {
			return err
		}
		fmt.Println(info)

	case "monitor":
		if len(args) != 3 {
			return fmt.Errorf("usage: monitor <path> <durationSeconds>")
		}
		seconds := mustParseUint(args[2])
		duration := time.Duration(seconds) * time.Second
		if err := c.Monitor(args[1], duration); err != nil {
			return err
		}
		log.Printf("monitoring %s for %s; waiting for callbacks", args[1], duration)
		deadline := time.Now().Add(duration)
		for time.Now().Before(deadline) {
			resp, err := c.ReceiveCallback(time.Until(deadline))
			if err != nil {
				break
			}
			fmt.Printf("callback: %s changed, new content: %q\n", resp.Path, resp.Payload)
		}

	default:
		return fmt.Errorf("unrecognized command %q", args[0])
	}
	return nil
}

func mustParseUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.Fatalf("invalid numeric argument %q: %v", s, err)
	}
	return v
}

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
