// Command tcplistener prints every request it receives. It is a debugging
// aid for the request parser.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/statichttp/internal/request"
	"github.com/Brownie44l1/statichttp/internal/response"
	"github.com/Brownie44l1/statichttp/internal/server"
)

const serverName = "tcplistener"

func main() {
	addr := flag.String("addr", ":42069", "listen address")
	flag.Parse()

	logger, err := server.NewLogger(os.Stderr, "debug", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("listen")
	}
	defer listener.Close()
	logger.Info().Str("addr", listener.Addr().String()).Msg("listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn().Err(err).Msg("accept")
			continue
		}

		go handleConnection(logger, conn)
	}
}

func handleConnection(logger zerolog.Logger, conn net.Conn) {
	defer conn.Close()

	req, err := request.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		logger.Info().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("read request")

		var perr *request.ProtocolError
		if errors.As(err, &perr) {
			reply(logger, conn, response.Error(response.StatusCode(perr.Status), perr.Message))
		}
		return
	}

	fmt.Println("Request line:")
	fmt.Printf("- Method: %s\n", req.Method)
	fmt.Printf("- Target: %s\n", req.Target)
	fmt.Printf("- Version: %s\n", req.Version)
	fmt.Println("Headers:")
	req.Headers.Each(func(name, value string) error {
		fmt.Printf("- %s: %s\n", name, value)
		return nil
	})

	body, err := req.ReadBody()
	if err != nil {
		logger.Info().Err(err).Msg("read body")
	}
	fmt.Println("Body:")
	fmt.Printf("%s\n", body)

	reply(logger, conn, response.Text(response.StatusOK, "Hello from your HTTP server!\n"))
}

func reply(logger zerolog.Logger, conn net.Conn, resp *response.Response) {
	response.Stamp(resp, serverName, time.Now())
	if err := response.NewWriter(conn).Send(resp); err != nil {
		logger.Info().Err(err).Msg("send response")
	}
}
