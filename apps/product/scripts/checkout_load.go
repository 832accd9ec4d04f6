// Command checkout_load fires concurrent checkouts of one product at a
// running gateway and reports how many went through.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type result struct {
	ok, outOfStock, limited, failed atomic.Int64
}

func post(client *http.Client, url, token string, body any) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// signUp 生成测试用户, returning its token.
func signUp(client *http.Client, base, username string) (string, error) {
	status, body, err := post(client, base+"/sign-up", "", map[string]string{
		"name": username, "username": username, "password": "load-test-pw",
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("sign-up %s: %d %s", username, status, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func main() {
	base := flag.String("url", "http://localhost:8080/api/v1", "gateway API base URL")
	productID := flag.Uint("product", 1, "product to check out")
	users := flag.Int("users", 50, "concurrent buyers")
	count := flag.Int("count", 1, "items per order")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	run := time.Now().UnixNano()

	tokens := make([]string, 0, *users)
	for i := 0; i < *users; i++ {
		token, err := signUp(client, *base, fmt.Sprintf("load_%d_%d", run, i))
		if err != nil {
			fmt.Println("sign-up failed:", err)
			return
		}
		tokens = append(tokens, token)
	}

	fmt.Printf("starting checkout test: product %d, %d buyers x %d\n", *productID, *users, *count)
	var (
		res result
		wg  sync.WaitGroup
	)
	start := time.Now()
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			lines := []map[string]any{{"id": *productID, "count": *count}}
			status, body, err := post(client, *base+"/orders", token, lines)
			switch {
			case err != nil:
				res.failed.Add(1)
				fmt.Println("request failed:", err)
			case status == http.StatusCreated:
				res.ok.Add(1)
			case status == http.StatusConflict:
				res.outOfStock.Add(1)
			case status == http.StatusTooManyRequests:
				res.limited.Add(1)
			default:
				res.failed.Add(1)
				fmt.Printf("unexpected %d: %s\n", status, body)
			}
		}(token)
	}
	wg.Wait()

	fmt.Println("------------------------------------------------")
	fmt.Printf("finished in %v\n", time.Since(start))
	fmt.Printf("created: %d  out of stock: %d  rate limited: %d  failed: %d\n",
		res.ok.Load(), res.outOfStock.Load(), res.limited.Load(), res.failed.Load())
}
