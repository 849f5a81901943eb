package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Gender labels produced by classification.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderNeutral = "gender-neutral"
	GenderUnknown = "unknown"
)

// minConfidence is the threshold below which a classification falls
// back to gender-neutral.
const minConfidence = 0.7

// modelInvoker is the slice of the Bedrock runtime client we use;
// tests substitute a fake.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// GenderClassifier infers a gender label from a contact's name using a
// Bedrock-hosted model.
type GenderClassifier struct {
	client  modelInvoker
	modelID string
}

// NewGenderClassifier creates a classifier backed by AWS Bedrock in
// the given region.
func NewGenderClassifier(ctx context.Context, modelID, region string) (*GenderClassifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &GenderClassifier{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// classifierRequest is the Anthropic messages body for InvokeModel.
type classifierRequest struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system"`
	Messages         []classifierMessage `json:"messages"`
	Temperature      float64             `json:"temperature"`
}

type classifierMessage struct {
	Role    string              `json:"role"`
	Content []classifierContent `json:"content"`
}

type classifierContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type classifierResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

const classifierSystemPrompt = `You classify first names by the gender they are most commonly associated with. Respond with exactly one JSON object: {"gender": "male"|"female"|"neutral", "confidence": 0.0-1.0}. No other text.`

// Classify infers a gender label for a name, optionally biased by a
// country hint. Low-confidence answers collapse to gender-neutral.
func (gc *GenderClassifier) Classify(ctx context.Context, name, countryHint string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GenderNeutral, nil
	}

	prompt := fmt.Sprintf("Name: %s", name)
	if countryHint != "" {
		prompt += fmt.Sprintf("\nCountry: %s", countryHint)
	}

	request := classifierRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        100,
		System:           classifierSystemPrompt,
		Messages: []classifierMessage{
			{
				Role:    "user",
				Content: []classifierContent{{Type: "text", Text: prompt}},
			},
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := gc.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(gc.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var response classifierResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	label, confidence, err := parseClassification(text)
	if err != nil {
		return "", err
	}
	if confidence < minConfidence {
		log.Printf("GenderClassifier: low confidence %.2f, falling back to %s", confidence, GenderNeutral)
		return GenderNeutral, nil
	}
	return label, nil
}

// parseClassification extracts the JSON object from the model's text,
// tolerating surrounding prose.
func parseClassification(text string) (string, float64, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", 0, fmt.Errorf("no JSON object in classifier output: %q", text)
	}

	var parsed struct {
		Gender     string  `json:"gender"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return "", 0, fmt.Errorf("parse classifier output: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Gender)) {
	case "male", "m":
		return GenderMale, parsed.Confidence, nil
	case "female", "f":
		return GenderFemale, parsed.Confidence, nil
	default:
		return GenderNeutral, parsed.Confidence, nil
	}
}

// BestKnownGender resolves the label synced to the record store:
// self-reported wins over the inferred label, and a contact with
// neither is unknown.
func BestKnownGender(selfReported, inferred string) string {
	if g := strings.ToLower(strings.TrimSpace(selfReported)); g != "" {
		return g
	}
	if g := strings.ToLower(strings.TrimSpace(inferred)); g != "" {
		return g
	}
	return GenderUnknown
}
