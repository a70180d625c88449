package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/hashvault/hashvault/internal/auth"
	"github.com/hashvault/hashvault/internal/client"
	"github.com/hashvault/hashvault/internal/validation"
	"github.com/hashvault/hashvault/internal/vfs"
)

var (
	addr     string
	username string
	service  string
)

func main() {
	flag.StringVar(&addr, "addr", "http://127.0.0.1:8791", "Vault server address")
	flag.StringVar(&username, "user", "", "Username")
	flag.StringVar(&service, "service", "", "Service namespace")
	flag.Parse()

	args := flag.Args()
	if username == "" || len(args) == 0 {
		usage()
		os.Exit(1)
	}
	if err := validation.ServerURL(addr); err != nil {
		fail(err)
	}

	password, err := readPassword()
	if err != nil {
		fail(err)
	}

	ctx := context.Background()
	fs, err := client.Login(ctx, addr, auth.Credentials{
		Username: username,
		Password: password,
		Service:  service,
	}, nil)
	if err != nil {
		fail(err)
	}
	defer fs.Close()

	switch args[0] {
	case "put":
		requireArgs(args, 2)
		data, err := readInput(args[2:])
		if err != nil {
			fail(err)
		}
		if err := fs.SaveFile(ctx, args[1], data); err != nil {
			fail(err)
		}

	case "get":
		requireArgs(args, 2)
		data, err := fs.GetFile(ctx, args[1])
		if err != nil {
			fail(err)
		}
		fmt.Print(data)

	case "rm":
		requireArgs(args, 2)
		if err := fs.DeleteFile(ctx, args[1]); err != nil {
			fail(err)
		}

	case "exists":
		requireArgs(args, 2)
		ok, err := fs.DoesFileExist(ctx, args[1])
		if err != nil {
			fail(err)
		}
		fmt.Println(ok)

	case "ls":
		index, err := fs.GetIndex(ctx)
		if err != nil {
			fail(err)
		}
		printTree(index, "")

	case "export":
		requireArgs(args, 2)
		bundle, err := fs.ExportEncryptedFiles(ctx, args[1:], nil)
		if err != nil {
			fail(err)
		}
		fmt.Print(bundle)

	case "import":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail(err)
		}
		paths, err := fs.ImportEncryptedFiles(ctx, string(data))
		if err != nil {
			fail(err)
		}
		for _, p := range paths {
			fmt.Println(p)
		}

	default:
		usage()
		os.Exit(1)
	}
}

func readPassword() (string, error) {
	if pw := os.Getenv("VAULT_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// readInput takes the file argument if present, otherwise reads stdin.
func readInput(rest []string) (string, error) {
	if len(rest) > 0 && rest[0] != "-" {
		data, err := os.ReadFile(rest[0])
		return string(data), err
	}
	data, err := io.ReadAll(os.Stdin)
	return string(data), err
}

func printTree(entry *vfs.Entry, prefix string) {
	names := make([]string, 0, len(entry.Contents))
	for name := range entry.Contents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := entry.Contents[name]
		if child.Type == vfs.TypeFolder {
			fmt.Printf("%s%s/\n", prefix, name)
			printTree(child, prefix+name+"/")
			continue
		}
		fmt.Printf("%s%s\t%s\n", prefix, name, child.Hash)
	}
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(`
Usage: vault -user <name> [-addr url] [-service ns] <command> [args]

Commands:
  put <path> [file|-]   save a file (stdin when no file given)
  get <path>            print a file
  rm <path>             delete a file
  exists <path>         check for a file
  ls                    list the index tree
  export <path>...      write an encrypted bundle to stdout
  import                import an encrypted bundle from stdin
`))
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
