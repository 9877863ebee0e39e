package main

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"

	"zapdesk/config"
	"zapdesk/internal/autoreply"
	"zapdesk/internal/events"
	"zapdesk/internal/gateway"
	"zapdesk/internal/handlers"
	"zapdesk/internal/models"
	"zapdesk/internal/notify"
	"zapdesk/internal/services"
	"zapdesk/internal/store"
	"zapdesk/pkg/logger"
)

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer st.Close()

	gatewayClient, err := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize gateway client")
	}

	replyClient, err := autoreply.NewClient(cfg.AutoreplyBaseURL, cfg.AutoreplyAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize autoreply client")
	}

	statusSync, err := services.NewInstanceStatusService(gatewayClient, st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize InstanceStatusService")
	}
	contacts, err := services.NewContactResolver(st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ContactResolver")
	}
	conversations, err := services.NewConversationResolver(st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ConversationResolver")
	}
	dedup, err := services.NewMessageDeduplicator(st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MessageDeduplicator")
	}

	dispatcher := services.NewAsyncDispatcher(0)
	handoff, err := services.NewHandoffService(st, gatewayClient, replyClient, dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize HandoffService")
	}

	publisher := events.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
	defer publisher.Close()

	webhook := handlers.NewWebhookHandler(st, statusSync, contacts, conversations, dedup, handoff, publisher)

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	webhook.Register(router)

	chain := alice.New(handlers.RequestLogger, handlers.Recoverer).Then(router)

	if cfg.NotifyOrgID != "" {
		notifier := notify.NotifierFunc(func(msg models.Message) {
			log.Info().Str("messageID", msg.ID).Str("conversationID", msg.ConversationID).Msg("New inbound message")
		})
		poller, err := notify.NewPoller(st, notifier, cfg.NotifyOrgID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize notification poller")
		}
		go poller.Run(context.Background())
	}

	log.Info().Str("port", cfg.Port).Msg("Server starting")
	if err := http.ListenAndServe(":"+cfg.Port, chain); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
