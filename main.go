package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philippgille/chromem-go"

	"schoolchat/internal/auth"
	"schoolchat/internal/config"
	"schoolchat/internal/history"
	"schoolchat/internal/kb"
	"schoolchat/internal/redis"
	"schoolchat/internal/responder"
	"schoolchat/internal/server"
	"schoolchat/internal/storage"
	"schoolchat/internal/worker"

	einomodel "github.com/cloudwego/eino/components/model"
)

func main() {
	cfgPath := os.Getenv("SCHOOLCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("SCHOOLCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	} else {
		log.Printf("redis not configured, history cache disabled")
	}

	embed := kb.LocalEmbedding(0)
	if prov, ok := cfg.Providers["openai"]; ok && prov.APIKey != "" {
		embed = chromem.NewEmbeddingFuncOpenAI(prov.APIKey, chromem.EmbeddingModelOpenAI3Small)
	}
	index, err := kb.NewIndex(embed)
	if err != nil {
		log.Fatalf("create knowledge base: %v", err)
	}
	if cfg.Knowledge.DocsDir != "" {
		n, err := index.IngestDir(context.Background(), cfg.Knowledge.DocsDir)
		if err != nil {
			log.Fatalf("ingest documents: %v", err)
		}
		log.Printf("indexed %d documents (%d chunks)", n, index.Count())
	}

	var chatModel einomodel.ToolCallingChatModel
	if cfg.Server.Provider != "" {
		provCfg, ok := cfg.Providers[cfg.Server.Provider]
		if !ok {
			log.Fatalf("provider %s not configured", cfg.Server.Provider)
		}
		chatModel, err = responder.NewChatModel(context.Background(), cfg.Server.Provider, provCfg, cfg.Server.Model)
		if err != nil {
			log.Fatalf("init chat model: %v", err)
		}
	} else {
		log.Printf("no provider configured, answering from the knowledge base only")
	}

	guard := responder.NewGuardrail(cfg.Guardrail.BlockedTerms)
	responderService := responder.NewService(chatModel, guard)
	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.Server.MinWorkers,
		MaxWorkers:  cfg.Server.MaxWorkers,
		QueueSize:   cfg.Server.QueueSize,
		IdleTimeout: time.Duration(cfg.Server.WorkerIdleTimeout) * time.Minute,
	})
	authService := auth.NewService(db, 24*time.Hour)
	historyService := history.NewService(db, rdb)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8090"
	}
	secret := cfg.Knowledge.LinkSecret
	if secret == "" {
		// Links then stay valid only for this process lifetime.
		secret = randomSecret()
	}
	publicBase := cfg.Knowledge.PublicBase
	if publicBase == "" {
		publicBase = fmt.Sprintf("http://localhost%s", addr)
	}
	links := kb.NewLinkSigner(secret, time.Duration(cfg.Knowledge.LinkTTL)*time.Minute, publicBase)

	handler := server.NewHandler(authService, historyService, index, responderService, dispatcher, links, cfg.Server.AuthRequired, cfg.Knowledge.MaxResults)
	router := gin.Default()
	handler.RegisterRoutes(router)

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("generate link secret: %v", err)
	}
	return hex.EncodeToString(buf)
}
