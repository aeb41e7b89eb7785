// Package app 根据配置组装服务的全部组件，供 HTTP 服务和命令行工具共用。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/pipeline"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/database"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/embedding"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/es"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/kafka"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/llm"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/metrics"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/rerank"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/storage"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/tika"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Options 调整组装方式。
type Options struct {
	// SyncProcessing 为 true 时文档在上传调用内同步处理，不经过 Kafka。
	SyncProcessing bool
}

// App 持有所有已组装的组件。
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Store   storage.BlobStore
	Index   *es.ChunkIndex
	Metrics *metrics.Metrics

	Documents repository.DocumentRepository
	Chunks    repository.ChunkRepository
	Processor *pipeline.Processor

	Retrieval     service.RetrievalService
	Search        service.SearchService
	Chat          service.ChatService
	Conversations service.ConversationService
	DocumentSvc   service.DocumentService

	inline   *pipeline.InlineDispatcher
	producer *kafka.Producer
}

// New 按配置创建全部组件。失败时已打开的资源会被关闭。
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New("tutor")}
	if err := a.build(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	log.Infof("[App] 组件初始化完成, database: %s, storage: %s, lexical: %s", cfg.Database.Driver, cfg.Storage.Driver, cfg.Retrieval.LexicalBackend)
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) (err error) {
	cfg := a.Config

	// 1. 存储
	if a.DB, err = openDatabase(cfg.Database); err != nil {
		return err
	}
	if err = repository.Migrate(a.DB); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	if cfg.Database.Redis.Addr != "" {
		if a.Redis, err = database.NewRedis(ctx, cfg.Database.Redis); err != nil {
			return err
		}
	} else {
		log.Info("[App] 未配置 Redis，会话历史不会保存")
	}
	if a.Store, err = storage.New(ctx, cfg.Storage); err != nil {
		return err
	}
	if cfg.Elasticsearch.Addresses != "" {
		if a.Index, err = es.NewChunkIndex(cfg.Elasticsearch); err != nil {
			return err
		}
		if err = a.Index.EnsureIndex(ctx); err != nil {
			return err
		}
	}

	// 2. Repository
	a.Documents = repository.NewDocumentRepository(a.DB)
	a.Chunks = repository.NewChunkRepository(a.DB)
	var conversationRepo repository.ConversationRepository
	if a.Redis != nil {
		conversationRepo = repository.NewConversationRepository(a.Redis)
	}

	// 3. 检索链路
	embedder := embedding.NewResilient(embedding.NewClient(cfg.Embedding), cfg.Embedding.Dimensions, func(error) {
		a.Metrics.LeafFailure("embedding")
	})
	lexical, err := a.lexicalSearcher()
	if err != nil {
		return err
	}
	hybrid := service.NewHybridSearcher(lexical, service.NewVectorSearcher(a.Chunks, a.Metrics))
	reranker := service.NewReranker(rerank.NewClient(cfg.Rerank), cfg.Rerank)
	a.Retrieval = service.NewRetrievalService(hybrid, reranker, a.Chunks, cfg.Retrieval, a.Metrics)
	a.Search = service.NewSearchService(a.Retrieval, embedder)
	a.Conversations = service.NewConversationService(conversationRepo)
	a.Chat = service.NewChatService(a.Retrieval, embedder, llm.NewClient(cfg.LLM), a.Conversations, a.Documents, cfg.LLM)

	// 4. 入库链路
	var extractor pipeline.TextExtractor
	if cfg.Tika.ServerURL != "" {
		extractor = tika.NewClient(cfg.Tika)
	}
	var indexer pipeline.ChunkIndexer
	var cleaner service.ChunkIndexCleaner
	if a.Index != nil {
		indexer, cleaner = a.Index, a.Index
	}
	a.Processor = pipeline.NewProcessor(a.Documents, a.Chunks, a.Store, extractor, embedder, indexer, cfg.Chunking, a.Metrics)

	var dispatcher service.TaskDispatcher
	if cfg.Kafka.Brokers != "" && !opts.SyncProcessing {
		a.producer = kafka.NewProducer(cfg.Kafka)
		dispatcher = a.producer
	} else {
		a.inline = pipeline.NewInlineDispatcher(a.Processor, !opts.SyncProcessing)
		dispatcher = a.inline
	}
	a.DocumentSvc = service.NewDocumentService(a.Documents, a.Chunks, a.Store, dispatcher, cleaner, cfg.Upload)

	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return database.OpenSQLite(cfg.SQLite.Path)
	case "mysql":
		return database.OpenMySQL(cfg.MySQL.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (a *App) lexicalSearcher() (service.LexicalSearcher, error) {
	useES := a.Config.Retrieval.LexicalBackend == "elasticsearch" || a.Config.Database.Driver == "mysql"
	if !useES {
		return service.NewFTSLexicalSearcher(a.Chunks, a.Metrics), nil
	}
	if a.Index == nil {
		return nil, errors.New("关键词检索需要 elasticsearch，但未配置 elasticsearch.addresses")
	}
	return service.NewESLexicalSearcher(a.Index, a.Metrics), nil
}

// KafkaEnabled 表示文档任务是否经由 Kafka 分发。
func (a *App) KafkaEnabled() bool {
	return a.producer != nil
}

// RunConsumer 在配置了 Kafka 时消费文档任务，直到 ctx 被取消。
func (a *App) RunConsumer(ctx context.Context) error {
	if a.producer == nil {
		return nil
	}
	var attempts kafka.AttemptCounter
	if a.Redis != nil {
		attempts = kafka.NewRedisAttemptCounter(a.Redis)
	}
	return kafka.NewConsumer(a.Config.Kafka, a.Processor, attempts).Run(ctx)
}

// Close 等待进程内任务结束并释放所有连接。
func (a *App) Close() {
	if a.inline != nil {
		a.inline.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Warnf("[App] 关闭 Kafka 生产者失败: %v", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if err := database.Close(a.DB); err != nil {
		log.Warnf("[App] 关闭数据库失败: %v", err)
	}
}
