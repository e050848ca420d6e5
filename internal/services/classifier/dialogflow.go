package classifier

import (
	"context"
	"fmt"

	dialogflow "cloud.google.com/go/dialogflow/apiv2"
	"cloud.google.com/go/dialogflow/apiv2/dialogflowpb"
	"github.com/google/uuid"
	"github.com/lbot-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

type intentDetector interface {
	DetectIntent(ctx context.Context, req *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error)
	Close() error
}

type sessionsClient struct {
	client *dialogflow.SessionsClient
}

func (s sessionsClient) DetectIntent(ctx context.Context, req *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error) {
	return s.client.DetectIntent(ctx, req)
}

func (s sessionsClient) Close() error {
	return s.client.Close()
}

// Dialogflow detects intents with a Dialogflow ES agent. The matched intent's
// action field is the label.
type Dialogflow struct {
	projectID     string
	minConfidence float64
	sessions      intentDetector
	logger        *logrus.Logger
}

// NewDialogflow opens a sessions client. Credentials come from the configured
// file or from the environment's application default credentials.
func NewDialogflow(ctx context.Context, cfg *config.DialogflowConfig, minConfidence float64, logger *logrus.Logger) (*Dialogflow, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := dialogflow.NewSessionsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogflow client: %w", err)
	}

	return newDialogflow(cfg.ProjectID, minConfidence, sessionsClient{client: client}, logger), nil
}

func newDialogflow(projectID string, minConfidence float64, sessions intentDetector, logger *logrus.Logger) *Dialogflow {
	return &Dialogflow{
		projectID:     projectID,
		minConfidence: minConfidence,
		sessions:      sessions,
		logger:        logger,
	}
}

// SessionPath returns the agent session resource name for id
func SessionPath(projectID, id string) string {
	return fmt.Sprintf("projects/%s/agent/sessions/%s", projectID, id)
}

func (d *Dialogflow) Detect(ctx context.Context, text, language string) (string, error) {
	if language == "" {
		language = "en"
	}

	req := &dialogflowpb.DetectIntentRequest{
		Session: SessionPath(d.projectID, uuid.NewString()),
		QueryInput: &dialogflowpb.QueryInput{
			Input: &dialogflowpb.QueryInput_Text{
				Text: &dialogflowpb.TextInput{
					Text:         text,
					LanguageCode: language,
				},
			},
		},
	}

	resp, err := d.sessions.DetectIntent(ctx, req)
	if err != nil {
		return "", fmt.Errorf("dialogflow detect intent failed: %w", err)
	}

	result := resp.GetQueryResult()
	if result == nil {
		return "", nil
	}

	d.logger.WithFields(logrus.Fields{
		"action":     result.GetAction(),
		"intent":     result.GetIntent().GetDisplayName(),
		"confidence": result.GetIntentDetectionConfidence(),
	}).Debug("Dialogflow intent detected")

	if float64(result.GetIntentDetectionConfidence()) < d.minConfidence {
		return "", nil
	}
	return result.GetAction(), nil
}

func (d *Dialogflow) Close() error {
	return d.sessions.Close()
}
