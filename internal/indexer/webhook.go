package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"indexq/internal/domain"
	"indexq/internal/ports"
	"indexq/internal/usecase"

	"github.com/rs/zerolog/log"
)

var _ ports.Indexer = (*Webhook)(nil)

// Webhook hands each task to an external search service as a JSON POST.
// Any non-2xx answer fails the task.
type Webhook struct {
	Endpoint string
	Client   *http.Client
}

func NewWebhook(endpoint string, timeout time.Duration) *Webhook {
	return &Webhook{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) ExecuteTask(ctx context.Context, t domain.TaskRecord) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := usecase.ExecutionID(ctx); id != "" {
		req.Header.Set("X-Indexq-Execution-Id", id)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("call indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("indexer answered %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	log.Ctx(ctx).Debug().
		Int64("task_id", t.ID).
		Str("endpoint", w.Endpoint).
		Msg("task delivered to indexer")
	return nil
}

// FromConfig builds a registry with one webhook per configured object type
// plus the default endpoint as fallback.
func FromConfig(endpoints map[string]string, defaultEndpoint string, timeout time.Duration) *Registry {
	r := NewRegistry()
	for objectType, url := range endpoints {
		r.Register(objectType, NewWebhook(url, timeout))
	}
	if defaultEndpoint != "" {
		r.SetFallback(NewWebhook(defaultEndpoint, timeout))
	}
	return r
}
