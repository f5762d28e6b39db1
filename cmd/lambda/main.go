// Command lambda serves the extractor behind an AWS Lambda Function URL.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/dvloznov/statement-extractor/internal/api/handlers"
	"github.com/dvloznov/statement-extractor/internal/app"
	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/logger"
)

// processor is the part of StatementsHandler the adapter needs.
type processor interface {
	Process(ctx context.Context, req handlers.Request) handlers.Response
}

func main() {
	cfg, err := config.Load()
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	a, err := app.Build(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build extractor")
	}

	log.Info().Str("region", cfg.AWSRegion).Str("model", a.ModelName()).Msg("Lambda handler ready")
	lambda.Start(newInvoker(a.Handler))
}

func newInvoker(p processor) func(ctx context.Context, raw json.RawMessage) (events.LambdaFunctionURLResponse, error) {
	return func(ctx context.Context, raw json.RawMessage) (events.LambdaFunctionURLResponse, error) {
		req := toRequest(raw)
		if lc, ok := lambdacontext.FromContext(ctx); ok && req.RequestID == "" {
			req.RequestID = lc.AwsRequestID
		}
		return toResponse(p.Process(ctx, req)), nil
	}
}

// restMethod holds the method fields of API Gateway REST (v1) events.
type restMethod struct {
	HTTPMethod     string `json:"httpMethod"`
	RequestContext struct {
		HTTPMethod string `json:"httpMethod"`
	} `json:"requestContext"`
}

// toRequest converts an invocation payload. Function URL and API Gateway
// events carry the body as a string; a direct invoke with the JSON body as
// the event itself is treated as a POST.
func toRequest(raw json.RawMessage) handlers.Request {
	var event events.LambdaFunctionURLRequest
	if err := json.Unmarshal(raw, &event); err != nil {
		return handlers.Request{Method: http.MethodPost, Headers: http.Header{}, Body: raw}
	}

	method := eventMethod(raw, event)
	routed := method != ""
	if !routed {
		method = http.MethodPost
	}

	headers := http.Header{}
	for k, v := range event.Headers {
		headers.Set(k, v)
	}

	req := handlers.Request{
		Method:    method,
		Headers:   headers,
		RequestID: event.RequestContext.RequestID,
	}

	switch {
	case event.Body == "" && !routed:
		req.Body = raw
	case event.IsBase64Encoded:
		body, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			req.Body = []byte(event.Body)
		} else {
			req.Body = body
		}
	default:
		req.Body = []byte(event.Body)
	}
	return req
}

// eventMethod reads the HTTP method from a Function URL or v2 event, then
// from the v1 top-level and request context fields.
func eventMethod(raw json.RawMessage, event events.LambdaFunctionURLRequest) string {
	if m := event.RequestContext.HTTP.Method; m != "" {
		return strings.ToUpper(m)
	}
	var rest restMethod
	if err := json.Unmarshal(raw, &rest); err != nil {
		return ""
	}
	if rest.HTTPMethod != "" {
		return strings.ToUpper(rest.HTTPMethod)
	}
	return strings.ToUpper(rest.RequestContext.HTTPMethod)
}

func toResponse(resp handlers.Response) events.LambdaFunctionURLResponse {
	headers := make(map[string]string, len(resp.Headers))
	for k := range resp.Headers {
		headers[k] = resp.Headers.Get(k)
	}
	return events.LambdaFunctionURLResponse{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       string(resp.Body),
	}
}
