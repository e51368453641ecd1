// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/SoftbearStudios/cartograph/server"
	"github.com/SoftbearStudios/cartograph/server/imagegen"
	"github.com/SoftbearStudios/cartograph/server_main/cloud"
	"golang.org/x/net/netutil"
)

func main() {
	var (
		apiKey         string
		configFile     string
		logFile        string
		model          string
		port           int
		maxConnections int
		retries        int
		size           int
		timeout        time.Duration
	)

	flag.StringVar(&apiKey, "api-key", "", "image service API key (default $OPENAI_API_KEY or ./api.key)")
	flag.StringVar(&configFile, "config", "", "JSON file of default noise parameters and bands")
	flag.StringVar(&logFile, "log", "", "CSV file to append generations to")
	flag.StringVar(&model, "model", imagegen.DefaultModel, "image model")
	flag.IntVar(&port, "port", 8192, "http service port")
	flag.IntVar(&maxConnections, "max-connections", 256, "maximum number of inbound TCP connections")
	flag.IntVar(&retries, "retries", server.DefaultRetries, "attempts per final generation")
	flag.IntVar(&size, "size", 0, "map width and height in pixels (default 1024)")
	flag.DurationVar(&timeout, "timeout", server.DefaultTimeout, "time limit per final generation")
	flag.Parse()

	sessionOptions := server.SessionOptions{
		Size:    size,
		Timeout: timeout,
		Retries: retries,
	}

	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			log.Fatal("config: ", err)
		}
		config, err := server.LoadConfig(f)
		f.Close()
		if err != nil {
			log.Fatal("config: ", err)
		}
		config.Apply(&sessionOptions)
	}

	if apiKey = loadAPIKey(apiKey); apiKey == "" {
		// Server still previews maps, but final generation fails
		log.Println("no API key, final generation disabled")
	} else {
		openAI := imagegen.NewOpenAI(apiKey)
		openAI.Model = model

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := openAI.Check(ctx); err != nil {
			log.Printf("Image service error: %v\n", err)
		}
		cancel()

		sessionOptions.Generator = openAI
	}

	var c server.Cloud

	c, err := cloud.New()
	if err != nil {
		// Cloud is not required for server to function, just log an error
		log.Printf("Cloud error: %v\n", err)

		c = server.Offline{}
	}

	hub := server.NewHub(server.HubOptions{
		Cloud:   c,
		Session: sessionOptions,
		LogFile: logFile,
	})

	go hub.Run()

	log.Printf("cartograph server started on port %d (cloud %s)\n", port, c)

	l, err := net.Listen("tcp", fmt.Sprint(":", port))

	if err != nil {
		log.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	l = netutil.LimitListener(l, maxConnections)

	log.Fatal("Serve: ", http.Serve(l, hub.Router()))
}

// loadAPIKey prefers flag, then environment, then a file.
func loadAPIKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	if buf, err := ioutil.ReadFile("api.key"); err == nil {
		return strings.TrimSpace(string(buf))
	}
	return ""
}
