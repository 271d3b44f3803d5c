package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/util"
)

// webhookCall performs one outbound HTTP call and merges the decoded JSON
// response into the run context. The engine does not retry: a failure routes
// to an error edge when one is declared, otherwise the run errors out.
func (d *Dispatcher) webhookCall(ctx context.Context, node *model.FlowNode, run *model.FlowRun) model.StepResult {
	cfg := node.Config.Webhook
	if cfg == nil {
		return model.FailStep("webhook_call node without webhook config")
	}
	runCtx := run.Context
	data := runCtx.AsMap()

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	url := util.ResolveString(cfg.Url, data)

	var body *bytes.Reader
	if len(cfg.Body) > 0 {
		encoded, err := json.Marshal(util.ResolveParams(cfg.Body, data))
		if err != nil {
			return model.FailStep("could not encode webhook body: " + err.Error())
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return model.FailStep("bad webhook request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, util.ResolveString(v, data))
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		logger.Error("webhook call failed", zap.String("runId", run.Id), zap.String("url", url), zap.Error(err))
		return model.FailStep("webhook call failed: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return model.FailStep(fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil {
		key := cfg.SaveAs
		if key == "" {
			key = node.Label
		}
		if key == "" {
			key = "webhook_" + node.Id
		}
		runCtx.Set(key, decoded)
	}
	return model.ContinueStep(runCtx)
}
