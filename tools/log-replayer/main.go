// log-replayer writes synthetic JSONL access-log lines at a bounded rate,
// mixing human, declared-bot, headless, attack and datacenter traffic shapes.
// Point ACCESS_LOG_GLOB at its output to soak-test the pipeline locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const lineTemplate = `{"ts":%.3f,"duration":%.4f,"status":%d,"size":%d,"request":{"remote_ip":"%s","method":"GET","host":"%s","uri":"%s","headers":%s}}`

type shape struct {
	name    string
	weight  int
	addr    string
	uri     string
	headers string
}

var shapes = []shape{
	{
		name: "human", weight: 60,
		addr: "203.0.113.%d", uri: "/articles/%d",
		headers: `{"User-Agent":["Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"],"Accept":["text/html,application/xhtml+xml"],"Sec-Fetch-Site":["none"],"Sec-Fetch-Mode":["navigate"],"Sec-Ch-Ua":["\"Chromium\";v=\"124\""]}`,
	},
	{
		name: "ai_bot", weight: 15,
		addr: "198.51.100.%d", uri: "/articles/%d",
		headers: `{"User-Agent":["Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko); compatible; GPTBot/1.2; +https://openai.com/gptbot"]}`,
	},
	{
		name: "headless", weight: 10,
		addr: "198.51.100.%d", uri: "/pricing?variant=%d",
		headers: `{"User-Agent":["Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/123.0.0.0 Safari/537.36"],"Sec-Fetch-Site":["none"]}`,
	},
	{
		name: "attack", weight: 5,
		addr: "192.0.2.%d", uri: "/wp-admin/setup-config.php?step=%d",
		headers: `{"User-Agent":["Mozlila/5.0 (Linux; Android 7.0)"]}`,
	},
	{
		name: "stealth", weight: 10,
		addr: "20.42.13.%d", uri: "/blog/post-%d",
		headers: `{"User-Agent":["Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"]}`,
	},
}

func main() {
	out := flag.String("out", "-", "Output file, or - for stdout")
	host := flag.String("host", "www.example-site.test", "Site host for generated records")
	lps := flag.Int("lps", 50, "Log lines per second")
	duration := flag.Duration("d", 30*time.Second, "How long to generate")
	flag.Parse()

	w := os.Stdout
	if *out != "-" {
		f, err := os.OpenFile(*out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open output: %v", err)
		}
		defer f.Close()
		w = f
	}

	log.Printf("Generating %d lines/s for %s to %s", *lps, *duration, *out)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*lps), *lps)

	var total int64
	weightSum := 0
	for _, s := range shapes {
		weightSum += s.weight
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		s := pick(weightSum)
		now := float64(time.Now().UnixNano()) / float64(time.Second)
		line := fmt.Sprintf(lineTemplate,
			now,
			rand.Float64()*0.2,
			200,
			1024+rand.Intn(65536),
			fmt.Sprintf(s.addr, 1+rand.Intn(250)),
			*host,
			fmt.Sprintf(s.uri, rand.Intn(500)),
			s.headers,
		)
		fmt.Fprintln(w, line)
		total++
	}

	log.Printf("Done. Wrote %d lines.", total)
}

func pick(weightSum int) shape {
	n := rand.Intn(weightSum)
	for _, s := range shapes {
		if n < s.weight {
			return s
		}
		n -= s.weight
	}
	return shapes[0]
}
