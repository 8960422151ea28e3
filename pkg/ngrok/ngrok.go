package ngrok

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// BinPath is the path to the ngrok binary
var BinPath = "ngrok"

// APIURL is the local ngrok api used to discover the tunnels
var APIURL = "http://localhost:4040/api/tunnels"

type tunnelsResponse struct {
	Tunnels []struct {
		Name      string `json:"name"`
		ID        string `json:"id"`
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
		Config    struct {
			Addr string `json:"addr"`
		} `json:"config"`
	} `json:"tunnels"`
}

// Run exposes the local http port through ngrok and returns its public URL.
// The tunnel is closed when the context is done.
func Run(ctx context.Context, port string) (string, error) {
	go func() {
		cmd := exec.CommandContext(ctx, BinPath, "http", port)
		data, err := cmd.CombinedOutput()
		if err != nil && ctx.Err() == nil {
			msg := string(data)
			log.Println(fmt.Errorf("ngrok: %w: %s", err, msg))
		}
	}()
	waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	client := &http.Client{
		Timeout: 5 * time.Second,
	}
	return wait(waitCtx, client, APIURL, port)
}

// wait polls the ngrok api until the tunnel for the port shows up.
func wait(ctx context.Context, client *http.Client, api, port string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var last error
	for {
		u, err := tunnel(ctx, client, api, port)
		if err == nil && u != "" {
			return u, nil
		}
		if err != nil {
			last = err
		}
		select {
		case <-ctx.Done():
			if last == nil {
				last = ctx.Err()
			}
			return "", fmt.Errorf("ngrok: couldn't find tunnel for port %s: %w", port, last)
		case <-ticker.C:
		}
	}
}

func tunnel(ctx context.Context, client *http.Client, api, port string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't get tunnels: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ngrok: unexpected status %s", resp.Status)
	}
	var tr tunnelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("ngrok: couldn't decode tunnels: %w", err)
	}
	for _, t := range tr.Tunnels {
		if tunnelPort(t.Config.Addr) != port {
			continue
		}
		if strings.HasPrefix(t.PublicURL, "https://") || t.Proto == "https" {
			return t.PublicURL, nil
		}
		return strings.Replace(t.PublicURL, "tcp://", "http://", 1), nil
	}
	return "", nil
}

func tunnelPort(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.Port() != "" {
		return u.Port()
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
