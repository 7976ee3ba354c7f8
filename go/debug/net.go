package debug

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/math-fehr/WindOS-sub000/go/debug/cmd"
	"github.com/math-fehr/WindOS-sub000/go/kernel"
)

func Accept(host, port string) (net.Conn, error) {
	addr := net.JoinHostPort(host, port)
	fmt.Fprintf(os.Stderr, "Waiting for connection on %s\n", addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	return ln.Accept()
}

// Serve runs monitor commands sent line by line over c until it closes.
func Serve(k *kernel.Kernel, c net.Conn) {
	defer c.Close()
	fmt.Fprintf(os.Stderr, "Monitor connection from %s\n", c.RemoteAddr())
	ctx := &cmd.Context{Writer: c, K: k}
	s := bufio.NewScanner(c)
	for {
		fmt.Fprint(c, "> ")
		if !s.Scan() {
			break
		}
		if s.Text() == "quit" {
			break
		}
		cmd.Run(ctx, s.Text())
	}
}
