// tinychat-server serves the tiny chat model over HTTP.
//
// Every flag may also be given as an environment variable TINYCHAT_<FLAG>, e.g.
// TINYCHAT_MODEL_DIR=/app/model.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/born-ml/tinychat/internal/config"
	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/inference"
	"github.com/born-ml/tinychat/internal/server"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagAddr         = flag.String("addr", ":8000", "HTTP listen address.")
	flagModelDir     = flag.String("model-dir", "./model", "Directory with config.json, tokenizer.json and model.safetensors.")
	flagSystemPrompt = flag.String("system-prompt", "api/system_prompt.txt", "File with the system prompt prepended to every request.")
	flagStaticDir    = flag.String("static-dir", "static", "Directory with the static web page. May be empty.")
	flagMaxNewTokens = flag.Int("max-new-tokens", 50, "Maximum number of tokens generated per request.")
	flagDoSample     = flag.Bool("do-sample", false, "Sample instead of greedy decoding.")
	flagTemperature  = flag.Float64("temperature", 1.0, "Sampling temperature, used with --do-sample.")
	flagTopK         = flag.Int("top-k", 0, "Top-k filter, used with --do-sample. 0 disables it.")
	flagTopP         = flag.Float64("top-p", 1.0, "Nucleus sampling mass, used with --do-sample. 1.0 disables it.")
	flagSeed         = flag.Int64("seed", -1, "Sampling seed. -1 picks a random seed per request.")
)

const shutdownTimeout = 10 * time.Second

func main() {
	klog.InitFlags(nil)
	if err := config.Parse(flag.CommandLine, os.Args[1:]); err != nil {
		klog.Exitf("%v", err)
	}
	defer klog.Flush()

	ctx, err := inference.LoadContext(*flagSystemPrompt, *flagModelDir)
	if err != nil {
		klog.Exitf("Failed to start: %+v", err)
	}

	genConfig := generate.DefaultConfig()
	genConfig.MaxNewTokens = *flagMaxNewTokens
	genConfig.DoSample = *flagDoSample
	genConfig.Temperature = float32(*flagTemperature)
	genConfig.TopK = *flagTopK
	genConfig.TopP = float32(*flagTopP)
	genConfig.Seed = *flagSeed
	if genConfig.MaxNewTokens <= 0 {
		klog.Exitf("--max-new-tokens must be positive, got %d", genConfig.MaxNewTokens)
	}

	srv := &http.Server{
		Addr:              *flagAddr,
		Handler:           server.New(ctx, genConfig, *flagStaticDir).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-stop.Done()
		klog.Infof("Shutting down ...")
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.Warningf("Shutdown: %v", err)
		}
	}()

	klog.Infof("Listening on %s", *flagAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		klog.Exitf("Server failed: %v", err)
	}
	<-idle
}
