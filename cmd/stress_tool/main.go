package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/urfave/cli/v2"
)

// 并发压测：同一条提交被多个审核员同时通过时只应产生一笔返现，
// 同一用户并发领券不应超过每人上限
func main() {
	app := &cli.App{
		Name:  "stress_tool",
		Usage: "hammer the approve and claim endpoints concurrently",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080"},
			&cli.StringFlag{Name: "token", Usage: "bearer token", Required: true},
			&cli.IntFlag{Name: "concurrency", Value: 200},
		},
		Commands: []*cli.Command{
			{
				Name:  "approve",
				Usage: "approve one participation from many goroutines",
				Flags: []cli.Flag{&cli.StringFlag{Name: "participation", Required: true}},
				Action: func(c *cli.Context) error {
					url := fmt.Sprintf("%s/admin/participations/%s/approve", c.String("url"), c.String("participation"))
					return run(c, url)
				},
			},
			{
				Name:  "claim",
				Usage: "claim one coupon from many goroutines with the same user",
				Flags: []cli.Flag{&cli.StringFlag{Name: "coupon", Required: true}},
				Action: func(c *cli.Context) error {
					url := fmt.Sprintf("%s/coupons/%s/claim", c.String("url"), c.String("coupon"))
					return run(c, url)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type envelope struct {
	Code int `json:"code"`
	Data struct {
		Issued *bool `json:"issued"`
	} `json:"data"`
}

type tally struct {
	mu       sync.Mutex
	byCode   map[int]int
	issued   int
	failures int
}

func (t *tally) add(env *envelope, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failures++
		return
	}
	t.byCode[env.Code]++
	if env.Data.Issued != nil && *env.Data.Issued {
		t.issued++
	}
}

func run(c *cli.Context, url string) error {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 1000
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(10*time.Second),
		httpclient.WithHTTPClient(&http.Client{Transport: transport}),
	)
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.String("token"))
	headers.Set("Content-Type", "application/json")

	n := c.Int("concurrency")
	result := &tally{byCode: map[int]int{}}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.add(post(client, url, headers))
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("请求数: %d  耗时: %v  QPS: %.2f\n", n, elapsed, float64(n)/elapsed.Seconds())
	for code, count := range result.byCode {
		fmt.Printf("业务码 %d: %d\n", code, count)
	}
	fmt.Printf("发券成功: %d\n", result.issued)
	fmt.Printf("网络失败: %d\n", result.failures)
	fmt.Println("--------------------------------------------------")
	return nil
}

func post(client *httpclient.Client, url string, headers http.Header) (*envelope, error) {
	resp, err := client.Post(url, nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %d response: %w", resp.StatusCode, err)
	}
	return &env, nil
}
