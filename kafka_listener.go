package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/authz"
	"github.com/RedHatInsights/document_source_sync/internal/logger"
	"github.com/RedHatInsights/document_source_sync/internal/orchestrator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/confluentinc/confluent-kafka-go.v1/kafka"
)

// SyncRequest is a scheduled trigger arriving on the platform request topic.
// The broker sits inside the platform perimeter, so messages run under the
// global tier and may fan out across tenants.
type SyncRequest struct {
	TenantID  int64  `json:"tenant_id"`
	SourceID  int64  `json:"source_id"`
	Limit     int    `json:"limit"`
	RequestID string `json:"request_id"`
}

func startKafkaListener(cfg *config.SourceSyncConfig, log *logrus.Logger, orch *orchestrator.Orchestrator, shutdown chan struct{}, wg *sync.WaitGroup) {
	defer log.Info("Kafka Listener exiting")
	defer wg.Done()
	ctx := context.Background()

	cm := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.KafkaBrokers, ","),
		"group.id":          cfg.KafkaGroupID,
	}

	c, err := kafka.NewConsumer(&cm)
	if err != nil {
		if ke, ok := err.(kafka.Error); ok {
			log.Errorf("Error creating Kafka consumer code %d %v", ke.Code(), err)
		} else {
			log.Errorf("Error creating Kafka consumer %v", err)
		}
		return
	}

	if err := c.Subscribe(cfg.KafkaTopic, nil); err != nil {
		log.Errorf("Error subscribing to topic %s %v", cfg.KafkaTopic, err)
		c.Close()
		return
	}

	doTerm := false
	for !doTerm {
		select {
		case <-shutdown:
			doTerm = true
		default:
			ev := c.Poll(1000)
			if ev == nil {
				continue
			}
			switch e := ev.(type) {
			case *kafka.Message:
				var message SyncRequest
				if err := json.Unmarshal(e.Value, &message); err != nil {
					log.Errorf("Error parsing message %v", err)
					continue
				}
				if message.RequestID == "" {
					message.RequestID = uuid.New().String()
				}
				log.Infof("Received sync request %s", message.RequestID)
				wg.Add(1)
				go runScheduledSync(ctx, cfg, log, orch, message, wg)
			case kafka.OffsetsCommitted:
				continue
			case kafka.Error:
				log.Infof("Kafka error %v", e)
			default:
				log.Infof("Got an event that's not a Message, Error, or OffsetsCommitted %v", ev)
			}
		}
	}
	log.Info("Closing Kafka Channel")
	c.Close()
}

func runScheduledSync(ctx context.Context, cfg *config.SourceSyncConfig, log *logrus.Logger, orch *orchestrator.Orchestrator, message SyncRequest, wg *sync.WaitGroup) {
	defer wg.Done()
	entry := logger.StartLogger(log, message.RequestID)

	caller := orchestrator.Caller{GlobalKey: cfg.GlobalSyncSecret}
	req := orchestrator.TriggerRequest{
		TenantID: message.TenantID,
		SourceID: message.SourceID,
		Limit:    message.Limit,
	}
	resp, err := orch.Trigger(ctx, entry, caller, req, authz.NewIdentityAuthorizer(entry, nil, nil))
	if err != nil {
		entry.Errorf("Error running scheduled sync %v", err)
		return
	}
	entry.Infof("Scheduled sync finished, %d files imported across %d sources", resp.InsertedTotal, len(resp.Results))
}
