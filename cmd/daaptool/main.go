// Command daaptool is an offline DMAP inspection CLI: fetch a DAAP
// endpoint or read a captured response body from a file, decode its
// tagged binary tree, and print it indented by nesting depth. Command
// structure follows the teacher pack's w64tool (flag-based subcommands
// posting to a binary protocol endpoint and pretty-printing the decoded
// reply), generalized from W64F opcodes to DMAP content codes.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"daap-server/internal/dmap"
	"daap-server/internal/version"
)

func main() {
	var url string
	var file string
	var showVersion bool
	flag.StringVar(&url, "url", "", "DAAP endpoint to GET and decode, e.g. http://host:3689/server-info")
	flag.StringVar(&file, "file", "", "Path to a captured DMAP response body to decode instead of fetching")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Get().String())
		return
	}

	body, err := fetchOrRead(url, file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daaptool:", err)
		os.Exit(1)
	}

	reg := dmap.DefaultRegistry()
	node, n, err := dmap.Decode(body, reg.KindOf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daaptool: decode:", err)
		os.Exit(1)
	}
	if n != len(body) {
		fmt.Fprintf(os.Stderr, "daaptool: warning: %d trailing bytes after decoded tree\n", len(body)-n)
	}

	printNode(reg, node, 0)
}

func fetchOrRead(url, file string) ([]byte, error) {
	switch {
	case file != "":
		return os.ReadFile(file)
	case url != "":
		resp, err := http.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 && resp.StatusCode != 206 {
			return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, fmt.Errorf("one of -url or -file is required")
	}
}

func printNode(reg *dmap.Registry, n dmap.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	name := n.Code
	if info, ok := reg.Lookup(n.Code); ok {
		name = info.Name
	}

	switch n.Kind {
	case dmap.KindContainer:
		fmt.Printf("%s%s (%s) {\n", indent, n.Code, name)
		for _, c := range n.Children {
			printNode(reg, c, depth+1)
		}
		fmt.Printf("%s}\n", indent)
	case dmap.KindString:
		fmt.Printf("%s%s (%s) = %q\n", indent, n.Code, name, n.Str)
	case dmap.KindBytes:
		fmt.Printf("%s%s (%s) = %d bytes\n", indent, n.Code, name, len(n.Bytes))
	case dmap.KindTimestamp:
		fmt.Printf("%s%s (%s) = %s\n", indent, n.Code, name, n.Time)
	case dmap.KindVersion:
		fmt.Printf("%s%s (%s) = %d.%d\n", indent, n.Code, name, n.Version.Major, n.Version.Minor)
	case dmap.KindInt8, dmap.KindInt16, dmap.KindInt32, dmap.KindInt64:
		fmt.Printf("%s%s (%s) = %d\n", indent, n.Code, name, n.Int)
	default:
		fmt.Printf("%s%s (%s) = %d\n", indent, n.Code, name, n.UInt)
	}
}
