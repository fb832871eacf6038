package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "xeroctl",
	Short: "Admin CLI for the xerosync server",
	Long: `xeroctl drives a running xerosync server over its admin API:
OAuth authorization, connection status, and manual sync triggers.

Server address and credentials come from flags or environment variables:
  XEROSYNC_SERVER          server base URL (default http://localhost:9330)
  XEROSYNC_ADMIN_USERNAME  admin API username
  XEROSYNC_ADMIN_PASSWORD  admin API password`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "Server base URL (overrides XEROSYNC_SERVER)")
	rootCmd.PersistentFlags().String("username", "", "Admin username (overrides XEROSYNC_ADMIN_USERNAME)")
	rootCmd.PersistentFlags().String("password", "", "Admin password (overrides XEROSYNC_ADMIN_PASSWORD)")
}

// client is a thin basic-auth JSON client for the admin API.
type client struct {
	base     string
	username string
	password string
	http     *http.Client
}

func newClient(cmd *cobra.Command) (*client, error) {
	flagOrEnv := func(flag, env string) string {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			return v
		}
		return os.Getenv(env)
	}

	base := flagOrEnv("server", "XEROSYNC_SERVER")
	if base == "" {
		base = "http://localhost:9330"
	}
	username := flagOrEnv("username", "XEROSYNC_ADMIN_USERNAME")
	password := flagOrEnv("password", "XEROSYNC_ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil, fmt.Errorf("admin credentials are required (flags or XEROSYNC_ADMIN_USERNAME/XEROSYNC_ADMIN_PASSWORD)")
	}

	return &client{
		base:     strings.TrimRight(base, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (c *client) do(method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// printJSON renders a server response for the terminal.
func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
