package control

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
)

// CallbackDispatcher implements room.CallbackNotifier by POSTing the
// on_join/on_leave Element callback bodies to the URL declared on a
// MemberSpec (spec.md §4.5). There is no ecosystem webhook client anywhere
// in the retrieved pack, so this is plain net/http — recorded in the
// grounding ledger as a deliberate stdlib exception.
type CallbackDispatcher struct {
	client *http.Client
}

func NewCallbackDispatcher(timeout time.Duration) *CallbackDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CallbackDispatcher{client: &http.Client{Timeout: timeout}}
}

type joinCallbackBody struct {
	MemberID ids.MemberId `json:"member_id"`
	At       string       `json:"at"`
}

type leaveCallbackBody struct {
	MemberID    ids.MemberId         `json:"member_id"`
	Reason      protocol.CloseReason `json:"reason"`
	At          string               `json:"at"`
}

func (d *CallbackDispatcher) NotifyJoin(url string, memberID ids.MemberId) {
	d.post(url, joinCallbackBody{MemberID: memberID, At: time.Now().UTC().Format(time.RFC3339)})
}

func (d *CallbackDispatcher) NotifyLeave(url string, memberID ids.MemberId, reason protocol.CloseReason) {
	d.post(url, leaveCallbackBody{MemberID: memberID, Reason: reason, At: time.Now().UTC().Format(time.RFC3339)})
}

func (d *CallbackDispatcher) post(url string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("encoding element callback body", "component", "control", "error", err)
		return
	}

	// Fire-and-forget: a failed callback delivery does not roll back the
	// Room state change that triggered it (spec.md §4.5 treats on_join/
	// on_leave as best-effort notifications, not transactional).
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			slog.Error("building element callback request", "component", "control", "url", url, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			slog.Warn("element callback delivery failed", "component", "control", "url", url, "error", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			slog.Warn("element callback rejected", "component", "control", "url", url, "status", resp.StatusCode)
		}
	}()
}
