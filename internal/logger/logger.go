package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger, populated by InitLogger
var Log *logrus.Logger

// InitLogger sets up logrus with the configured level and, when AWS
// credentials are present, a CloudWatch Logs hook so pod logs end up in the
// platform log group.
func InitLogger(cfg *config.SourceSyncConfig) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stdout
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.999Z",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "@timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.AwsAccessKeyId != "" && cfg.AwsSecretAccessKey != "" {
		hook, err := newCloudWatchHook(cfg)
		if err != nil {
			log.Errorf("Unable to set up cloudwatch hook %v", err)
		} else {
			log.AddHook(hook)
		}
	}
	Log = log
	return log
}

type cloudWatchHook struct {
	client        *cloudwatchlogs.CloudWatchLogs
	group         string
	stream        string
	sequenceToken *string
}

func newCloudWatchHook(cfg *config.SourceSyncConfig) (*cloudWatchHook, error) {
	creds := credentials.NewStaticCredentials(cfg.AwsAccessKeyId, cfg.AwsSecretAccessKey, "")
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.AwsRegion),
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}
	client := cloudwatchlogs.New(sess)
	hook := &cloudWatchHook{client: client, group: cfg.LogGroup, stream: cfg.Hostname}
	_, err = client.CreateLogStream(&cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(hook.group),
		LogStreamName: aws.String(hook.stream),
	})
	if err != nil && !strings.Contains(err.Error(), cloudwatchlogs.ErrCodeResourceAlreadyExistsException) {
		return nil, err
	}
	return hook, nil
}

func (h *cloudWatchHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (h *cloudWatchHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	out, err := h.client.PutLogEvents(&cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(h.group),
		LogStreamName: aws.String(h.stream),
		SequenceToken: h.sequenceToken,
		LogEvents: []*cloudwatchlogs.InputLogEvent{
			{
				Message:   aws.String(line),
				Timestamp: aws.Int64(entry.Time.UnixNano() / 1000000),
			},
		},
	})
	if err != nil {
		return err
	}
	h.sequenceToken = out.NextSequenceToken
	return nil
}

// StartLogger creates a request scoped log entry tagged with the request id
func StartLogger(log *logrus.Logger, requestID string) *logrus.Entry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithFields(logrus.Fields{"request_id": requestID})
}

// LogWithSource tags an entry with the tenant and source being processed
func LogWithSource(entry *logrus.Entry, tenantID int64, sourceID int64) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"tenant_id": fmt.Sprintf("%d", tenantID),
		"source_id": fmt.Sprintf("%d", sourceID),
	})
}
