package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	refresh := flag.Bool("refresh", false, "check every endpoint now and print a summary")
	flag.Parse()

	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 2 * time.Minute}

	if *refresh {
		runRefresh(client, api)
		return
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(q string) string {
		fmt.Print(q)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	raw := prompt("Enter a site URL to monitor (e.g., https://example.com): ")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		return
	}
	name := prompt("Name [" + raw + "]: ")
	if name == "" {
		name = raw
	}
	method := strings.ToUpper(prompt("HTTP method [GET]: "))

	body, _ := json.Marshal(map[string]string{"name": name, "url": raw, "method": method})
	resp, err := client.Post(api+"/api/endpoints", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	var env struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		fmt.Printf("Added %s. Run a check with POST /api/endpoints/%s/check.\n", env.Data.ID, env.Data.ID)
	} else {
		fmt.Println("API returned status:", resp.Status, env.Error)
	}
}

func runRefresh(client *http.Client, api string) {
	resp, err := client.Post(api+"/api/endpoints/refresh", "application/json", nil)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var env struct {
		Data struct {
			Total   int `json:"total"`
			Checked int `json:"checked"`
			Failed  int `json:"failed"`
			Items   []struct {
				ID     string `json:"id"`
				Result *struct {
					Status    string `json:"status"`
					LatencyMS int64  `json:"latency"`
				} `json:"result"`
				Skipped bool   `json:"skipped"`
				Error   string `json:"error"`
			} `json:"items"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || resp.StatusCode != http.StatusOK {
		fmt.Println("API returned status:", resp.Status, env.Error)
		os.Exit(1)
	}
	for _, it := range env.Data.Items {
		switch {
		case it.Error != "":
			fmt.Printf("%-36s  ERROR  %s\n", it.ID, it.Error)
		case it.Skipped:
			fmt.Printf("%-36s  BUSY   check already running\n", it.ID)
		case it.Result != nil:
			fmt.Printf("%-36s  %-8s %dms\n", it.ID, it.Result.Status, it.Result.LatencyMS)
		}
	}
	fmt.Printf("%d endpoints, %d checked, %d failed\n", env.Data.Total, env.Data.Checked, env.Data.Failed)
}
