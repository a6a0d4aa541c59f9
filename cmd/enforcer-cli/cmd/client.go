package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/opendnssec/opendnssec-sub014/internal/commandsocket"
)

// newClient builds an http.Client that dials path as an AF_UNIX socket
// regardless of the URL host given to it, mirroring tdns.Api's
// http.Client-over-TCP-plus-TLS pattern but swapping the transport's
// DialContext for a unix-domain dialer.
func newClient(path string) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		},
	}
}

// post sends body as JSON to the command socket endpoint and decodes a
// commandsocket.Response, mirroring tdns-cli's SendCommandNG helper.
func post(endpoint string, body interface{}) (*commandsocket.Response, error) {
	path := resolveSocketPath()
	client := newClient(path)

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, err
	}

	resp, err := client.Post("http://unix"+endpoint, "application/json", buf)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var cr commandsocket.Response
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("decoding response: %w (body: %s)", err, data)
	}
	return &cr, nil
}

// printResult prints a command's response in the uniform shape every
// enforcer-cli subcommand uses: an error line, or the data payload
// pretty-printed as JSON.
func printResult(cr *commandsocket.Response, err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if cr.Error {
		fmt.Printf("Error: %s\n", cr.ErrorMsg)
		return
	}
	if cr.Data == nil {
		fmt.Println("OK")
		return
	}
	out, err := json.MarshalIndent(cr.Data, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", cr.Data)
		return
	}
	fmt.Println(string(out))
}
