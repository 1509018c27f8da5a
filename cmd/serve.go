package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"chatline/internal/auth"
	"chatline/internal/config"
	"chatline/internal/db"
	"chatline/internal/delivery"
	"chatline/internal/events"
	grpcserver "chatline/internal/grpc"
	"chatline/internal/handlers"
	"chatline/internal/rabbitmq"
	"chatline/internal/repositories"
	"chatline/internal/services"
	"chatline/internal/storage"
	"chatline/internal/telemetry"
	"chatline/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, websocket and gRPC health servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		applyServeFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	serveCmd.Flags().String("grpc-port", "", "gRPC health port (overrides GRPC_PORT)")
	serveCmd.Flags().String("store", "", "Store backend: postgres or memory (overrides STORE_BACKEND)")
	serveCmd.Flags().String("storage", "", "Media backend: local or s3 (overrides STORAGE_BACKEND)")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags lets CLI flags override environment variables.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if port, _ := cmd.Flags().GetString("grpc-port"); port != "" {
		cfg.GRPCPort = port
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.StoreBackend = store
	}
	if backend, _ := cmd.Flags().GetString("storage"); backend != "" {
		cfg.StorageBackend = backend
	}
}

type stores struct {
	users    repositories.UserRepository
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	close    func() error
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		log.Printf("store backend=memory: data is lost on restart")
		mem := repositories.NewMemoryStore()
		return stores{users: mem, groups: mem, messages: mem, close: func() error { return nil }}, nil
	}
	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to db: %w", err)
	}
	return stores{
		users:    repositories.NewUserRepo(database),
		groups:   repositories.NewGroupRepo(database),
		messages: repositories.NewMessageRepo(database),
		close:    database.Close,
	}, nil
}

func openMedia(ctx context.Context, cfg config.Config) (storage.ObjectStore, string, error) {
	if cfg.StorageBackend == config.StorageBackendS3 {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			PublicURL:       cfg.S3.PublicURL,
		})
		return store, "", err
	}
	store, err := storage.NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL+"/uploads")
	if err != nil {
		return nil, "", err
	}
	return store, store.Dir(), nil
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	media, uploadDir, err := openMedia(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open media storage: %w", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("rabbitmq publisher mode=%s", rabbitmq.PublisherMode(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "audit.events", cfg.ServiceName, cfg.Environment)
	sink := rabbitmq.NewEventSink(publisher, cfg.ServiceName, 0)

	hub := ws.NewHub()
	bus := events.NewBus(delivery.NewRouter(hub), sink)

	authService := auth.NewService(st.users, cfg.JWTSecret, cfg.TokenTTL)
	groupService := services.NewGroupService(st.groups, st.messages, st.users, media, bus)
	messageService := services.NewMessageService(st.messages, st.users, media, bus)
	userService := services.NewUserService(st.users, media)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Routes{
		ServiceName:   cfg.ServiceName,
		Auth:          handlers.NewAuthHandler(authService, userService, audit, cfg.CookieSecure),
		Messages:      handlers.NewMessageHandler(messageService, audit),
		Groups:        handlers.NewGroupHandler(groupService, audit),
		Presence:      handlers.NewPresenceHandler(hub),
		WebSocket:     ws.NewWebSocketHandler(hub, authService, publisher).Handle,
		Authenticator: authService,
		Audit:         audit,
		UploadDir:     uploadDir,
		Debug:         cfg.IsDevelopment(),
	})

	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	grpcSrv := grpcserver.NewServer(cfg.ServiceName)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("grpc health server listening on :%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Printf("http server listening on :%s store=%s storage=%s", cfg.Port, cfg.StoreBackend, cfg.StorageBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	grpcSrv.SetServing(true)

	var runErr error
	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case runErr = <-errCh:
		log.Printf("server error: %v", runErr)
	}

	grpcSrv.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	hub.CloseAll()
	grpcSrv.GracefulStop()
	if err := sink.Close(shutdownCtx); err != nil {
		log.Printf("event sink flush error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracer shutdown error: %v", err)
	}
	log.Printf("shutdown complete")
	return runErr
}
