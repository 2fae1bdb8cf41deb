package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	http       *http.Client
	base       string
	adminToken string
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token for catalog and confirm endpoints")
	initialStock := flag.Int64("stock", 5, "initial stock of the seeded variant")
	qty := flag.Int64("qty", 2, "units in the test order")

	// 重复确认测试：同一订单并发确认 N 次，只允许扣减一次
	total := flag.Int("n", 50, "concurrent confirmations of the same order")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	c := &client{http: &http.Client{Timeout: 10 * time.Second}, base: *baseURL, adminToken: *adminToken}

	variantID, err := c.seed(*initialStock)
	if err != nil {
		fail("seed catalog: %v", err)
	}
	orderID, err := c.checkout(variantID, *qty)
	if err != nil {
		fail("checkout: %v", err)
	}
	fmt.Printf("seeded variant=%d stock=%d order=%d qty=%d\n", variantID, *initialStock, orderID, *qty)

	fmt.Printf("start confirm test: order=%d requests=%d concurrency=%d\n", orderID, *total, *concurrency)
	results := runConfirm(c, orderID, *total, *concurrency)
	fresh, noop := printSummary("confirm", results)

	finalStock, err := c.stockOf(variantID)
	if err != nil {
		fail("stock check: %v", err)
	}
	fmt.Println("final db stock:", finalStock)

	ok := true
	if fresh != 1 {
		fmt.Printf("FAIL: expected exactly 1 fresh confirmation, got %d\n", fresh)
		ok = false
	}
	if want := *initialStock - *qty; finalStock != want {
		fmt.Printf("FAIL: expected final stock %d, got %d\n", want, finalStock)
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Printf("PASS: 1 confirmation, %d already_confirmed\n", noop)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runConfirm(c *client, orderID uint, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = c.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/confirm-payment", orderID), nil, true)
		}(i)
	}

	wg.Wait()
	return results
}

func (c *client) do(method, path string, body any, admin bool) Result {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, c.base+path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

// data 调用接口并解出 data 字段，非 200 视为错误。
func (c *client) data(method, path string, body any, admin bool, out any) error {
	res := c.do(method, path, body, admin)
	if res.Err != nil {
		return res.Err
	}
	if res.Status != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", method, path, res.Status, res.Body)
	}
	var env envelope
	if err := json.Unmarshal([]byte(res.Body), &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

func (c *client) seed(stock int64) (uint, error) {
	var p struct {
		ID uint `json:"id"`
	}
	name := fmt.Sprintf("Loadtest %d", time.Now().UnixNano())
	if err := c.data(http.MethodPost, "/api/products", map[string]any{"name": name, "price": 50000}, true, &p); err != nil {
		return 0, err
	}
	var v struct {
		ID uint `json:"id"`
	}
	err := c.data(http.MethodPost, fmt.Sprintf("/api/products/%d/variants", p.ID),
		map[string]any{"kind": "size", "value": "M", "stock": stock}, true, &v)
	return v.ID, err
}

func (c *client) checkout(variantID uint, qty int64) (uint, error) {
	var o struct {
		ID uint `json:"id"`
	}
	err := c.data(http.MethodPost, "/api/orders/checkout", map[string]any{
		"document_type":   "CC",
		"document_number": "900100200",
		"full_name":       "Load Test",
		"email":           "loadtest@example.com",
		"city_code":       "BOG",
		"address":         "Calle 100 # 1-1",
		"items":           []map[string]any{{"variant_id": variantID, "quantity": qty}},
	}, false, &o)
	return o.ID, err
}

func (c *client) stockOf(variantID uint) (int64, error) {
	var products []struct {
		Variants []struct {
			ID    uint  `json:"id"`
			Stock int64 `json:"stock"`
		} `json:"variants"`
	}
	if err := c.data(http.MethodGet, "/api/products?all=true", nil, false, &products); err != nil {
		return 0, err
	}
	for _, p := range products {
		for _, v := range p.Variants {
			if v.ID == variantID {
				return v.Stock, nil
			}
		}
	}
	return 0, fmt.Errorf("variant %d not found", variantID)
}

// printSummary 聚合输出不同状态码分布，并区分首次确认与重复确认。
func printSummary(name string, results []Result) (fresh, noop int) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
		if r.Status != http.StatusOK {
			continue
		}
		var env struct {
			Data struct {
				AlreadyConfirmed bool `json:"already_confirmed"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(r.Body), &env); err != nil {
			continue
		}
		if env.Data.AlreadyConfirmed {
			noop++
		} else {
			fresh++
		}
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 401, 404, 409, 422, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d: %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  transport errors: %d\n", errCount)
	}
	fmt.Printf("  fresh=%d already_confirmed=%d (429 is the rate limiter, not a failure)\n", fresh, noop)
	return fresh, noop
}
