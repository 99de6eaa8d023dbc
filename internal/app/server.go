package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	cronv3 "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	transport "alphamachine/gateway/internal/app/http"
	"alphamachine/gateway/internal/cache"
	"alphamachine/gateway/internal/channel"
	"alphamachine/gateway/internal/config"
	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/linear"
	"alphamachine/gateway/internal/llm"
	"alphamachine/gateway/internal/notion"
	"alphamachine/gateway/internal/service/adapters"
	"alphamachine/gateway/internal/service/contextmgr"
	"alphamachine/gateway/internal/service/conversation"
	"alphamachine/gateway/internal/service/orchestrator"
	"alphamachine/gateway/internal/service/ports"
	"alphamachine/gateway/internal/store"
)

const version = "0.1.0"

// Server owns the wired pipeline: datastore, upstream clients, the context
// and write services, the slash-command flows, and the weekly digest cron.
type Server struct {
	cfg       config.Config
	log       *zap.Logger
	store     *store.Store
	commands  *Commands
	messenger ports.Messenger
	cron      *cronv3.Cron

	closeOnce sync.Once
}

func NewServer(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, fmt.Errorf("load workspace credentials: %w", err)
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	linearClient := linear.NewClient(creds, linear.Options{
		TeamName:        cfg.Linear.TeamName,
		DefaultAssignee: cfg.Linear.DefaultAssignee,
	})
	notionClient := notion.NewClient(cfg.NotionToken, notion.Options{})
	llmClient := llm.NewClient(cfg.OpenAI.APIKey, llm.Options{
		Model:           cfg.OpenAI.Model,
		MaxOutputTokens: cfg.OpenAI.MaxOutputTokens,
		Temperature:     cfg.OpenAI.Temperature,
	})
	slackChannel := channel.NewSlackChannel(cfg.Slack.BotToken, channel.SlackOptions{})

	conversationStore := adapters.ConversationStore{Store: db}

	contextService := contextmgr.NewService(contextmgr.Dependencies{
		Tickets:        adapters.TicketReader{Client: linearClient},
		Documents:      adapters.DocumentReader{Store: db},
		Pages:          adapters.PageReader{Client: notionClient},
		ClientStatuses: adapters.ClientStatusReader{Store: db},
		Conversations:  conversationStore,
		Cache:          cache.New(cfg.CacheTTL),
		Logger:         log,
		FetchTimeout:   cfg.FetchTimeout,
	})

	conversationService := conversation.NewService(conversation.Dependencies{
		Store:  conversationStore,
		Logger: log,
	})

	writeService := orchestrator.NewService(orchestrator.Dependencies{
		Writer:          adapters.TicketWriter{Client: linearClient},
		Credentials:     creds,
		WriteCredential: creds.Write(),
		WritesEnabled:   cfg.WritesEnabled,
		MutationTimeout: cfg.MutationTimeout,
		Logger:          log,
	})

	commands := NewCommands(CommandsDependencies{
		Context:      contextService,
		Conversation: conversationService,
		Generator:    adapters.Generator{Client: llmClient},
		Orchestrator: writeService,
		Log:          db,
		Summaries:    db,
		Logger:       log,
	})

	srv := &Server{
		cfg:       cfg,
		log:       log,
		store:     db,
		commands:  commands,
		messenger: adapters.Messenger{Channel: slackChannel},
	}
	srv.startWeeklyDigest()
	return srv, nil
}

// Handler builds the HTTP surface: signed slash-command webhook plus the
// public health endpoints.
func (s *Server) Handler() http.Handler {
	return transport.NewRouter(transport.RouterConfig{
		SigningSecret: s.cfg.Slack.SigningSecret,
		Logger:        s.log,
		Version:       version,
	}, transport.Handlers{
		Command: s.handleSlashCommand,
	})
}

// Execute runs one instruction through the command flows. Both transports
// (webhook and socket mode) and the cron land here.
func (s *Server) Execute(ctx context.Context, instr domain.Instruction) domain.Response {
	return s.commands.Handle(ctx, instr)
}

func (s *Server) startWeeklyDigest() {
	spec := s.cfg.WeeklyCron
	channelID := s.cfg.WeeklyChannel
	if spec == "" || channelID == "" {
		return
	}

	c := cronv3.New()
	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		resp := s.Execute(ctx, domain.Instruction{
			Kind:      domain.CommandWeeklySummary,
			UserID:    "cron",
			ChannelID: channelID,
		})
		if err := s.messenger.SendMessage(ctx, channelID, resp.Text); err != nil {
			s.log.Warn("weekly digest delivery failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	})
	if err != nil {
		s.log.Warn("weekly digest schedule rejected", zap.String("spec", spec), zap.Error(err))
		return
	}
	c.Start()
	s.cron = c
	s.log.Info("weekly digest scheduled", zap.String("spec", spec), zap.String("channel_id", channelID))
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		err = s.store.Close()
	})
	return err
}
