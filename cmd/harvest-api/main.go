package main

import (
	"context"
	"flag"
	"log"

	"github.com/pevans/harvest/api"
	"github.com/pevans/harvest/config"
	"github.com/pevans/harvest/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default ~/.harvest/config.yaml)")
	addr := flag.String("addr", "", "Listen address (HARVEST_API_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}
	cfg.Resolve()

	articles := cfg.Storage.Articles
	lister, closeLister, err := store.OpenLister(context.Background(), articles.Type, articles.DSN)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", articles.Type, err)
	}
	defer closeLister()

	server := api.NewArticleAPIServer(lister)
	router := server.SetupRouter()

	log.Printf("Starting Article API server on http://%s/api/v1/articles", cfg.API.Addr)

	if err := router.Run(cfg.API.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
