// Command demo serves a minimal counter over WebSocket: the first message
// is the full rendered tree, every one after that a sparse diff the page
// merges and re-renders client side.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/livefir/livediff"
)

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Render() (*livediff.Tree, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return livediff.NewTree(
		[]string{
			`<h1>Counter</h1><p>Count: <b id="count">`,
			`</b></p><button onclick="send('increment')">+</button> <button onclick="send('decrement')">-</button>`,
		},
		livediff.Scalar(strconv.Itoa(c.n)),
	)
}

func (c *counter) HandleEvent(_ context.Context, event string, _ map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch event {
	case "increment":
		c.n++
	case "decrement":
		c.n--
	}
	return nil
}

const page = `<!DOCTYPE html>
<html>
<head><title>livediff demo</title></head>
<body>
<div id="app"></div>
<script>
const ws = new WebSocket("ws://" + location.host + "/live");
let tree = null;

function mergeVal(prev, ch) {
  if (typeof ch !== "object") return String(ch);
  if ("s" in ch) return ch; // full replacement value
  if ("e" in ch || "a" in ch || "t" in ch) {
    const out = {s: prev.s, d: prev.d.slice()};
    if (ch.e) for (const [j, row] of Object.entries(ch.e)) {
      const merged = out.d[j].slice();
      for (const [k, sub] of Object.entries(row)) merged[k] = mergeVal(merged[k], sub);
      out.d[j] = merged;
    }
    if ("t" in ch) out.d = out.d.slice(0, ch.t);
    if (ch.a) out.d = out.d.concat(ch.a);
    return out;
  }
  const out = Object.assign({}, prev);
  for (const [k, sub] of Object.entries(ch)) out[k] = mergeVal(prev[k], sub);
  return out;
}

function flatten(node) {
  if (typeof node !== "object") return String(node);
  if ("d" in node) {
    return node.d.map(row => node.s.map((s, i) =>
      i < row.length ? s + flatten(row[i]) : s).join("")).join("");
  }
  return node.s.map((s, i) =>
    (i in node) || (String(i) in node) ? s + flatten(node[String(i)]) : s).join("");
}

ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (!msg.update) return;
  tree = "s" in msg.update ? msg.update : mergeVal(tree, msg.update);
  document.getElementById("app").innerHTML = flatten(tree);
};

function send(event) { ws.send(JSON.stringify({event: event})); }
</script>
</body>
</html>`

func main() {
	addr := flag.String("addr", "localhost:8080", "listen address")
	configPath := flag.String("config", "", "optional yaml config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	config := livediff.DefaultConfig()
	if *configPath != "" {
		loaded, err := livediff.LoadConfig(*configPath)
		if err != nil {
			logger.Error("config load failed", "err", err)
			os.Exit(1)
		}
		config = loaded
	}
	if config.Addr != "" {
		*addr = config.Addr
	}

	view := &counter{}
	handler, err := livediff.NewHandler(func(r *http.Request) (livediff.View, error) {
		return view, nil
	}, livediff.WithConfig(config), livediff.WithLogger(logger), livediff.WithMinify())
	if err != nil {
		logger.Error("handler setup failed", "err", err)
		os.Exit(1)
	}
	defer handler.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	mux.Handle("/live", handler)

	logger.Info("demo listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
