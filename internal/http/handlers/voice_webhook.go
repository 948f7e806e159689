package handlers

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightline-clinics/voice-scheduler/internal/calls"
	"github.com/brightline-clinics/voice-scheduler/internal/patients"
	"github.com/brightline-clinics/voice-scheduler/internal/phone"
	"github.com/brightline-clinics/voice-scheduler/internal/voiceagent"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

var voiceTracer = otel.Tracer("scheduler.internal.http.voice")

type sessionStore interface {
	Save(ctx context.Context, sess *calls.Session) error
	Get(ctx context.Context, sessionID string) (*calls.Session, error)
	End(ctx context.Context, sessionID, outcome string) error
}

type callLog interface {
	Record(ctx context.Context, entry calls.CallLogEntry)
	UpdateStatus(ctx context.Context, callSID, status string)
	SetOutcome(ctx context.Context, callSID, outcome string)
}

type agentClient interface {
	CreateSession(ctx context.Context, req voiceagent.CreateSessionRequest) (*voiceagent.Session, error)
}

// VoiceWebhookHandler answers the telephony provider's inbound-call webhook:
// it opens an AI agent session, records the session/call correlation, and
// tells the provider to fork call audio to the agent's stream.
type VoiceWebhookHandler struct {
	agent         agentClient
	sessions      sessionStore
	callLog       callLog
	patients      patients.Repository
	logger        *logging.Logger
	webhookSecret string
	publicBaseURL string
	dialPrefix    string
	agentTimeout  time.Duration
}

type VoiceWebhookConfig struct {
	Agent         agentClient
	Sessions      sessionStore
	CallLog       callLog
	Patients      patients.Repository
	Logger        *logging.Logger
	WebhookSecret string
	PublicBaseURL string
	DialPrefix    string
	AgentTimeout  time.Duration
}

func NewVoiceWebhookHandler(cfg VoiceWebhookConfig) *VoiceWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 10 * time.Second
	}
	if cfg.DialPrefix == "" {
		cfg.DialPrefix = phone.DefaultDialPrefix
	}
	return &VoiceWebhookHandler{
		agent:         cfg.Agent,
		sessions:      cfg.Sessions,
		callLog:       cfg.CallLog,
		patients:      cfg.Patients,
		logger:        cfg.Logger,
		webhookSecret: cfg.WebhookSecret,
		publicBaseURL: cfg.PublicBaseURL,
		dialPrefix:    cfg.DialPrefix,
		agentTimeout:  cfg.AgentTimeout,
	}
}

type voiceResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     string        `xml:"Say,omitempty"`
	Connect *voiceConnect `xml:"Connect,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type voiceConnect struct {
	Stream voiceStream `xml:"Stream"`
}

type voiceStream struct {
	URL string `xml:"url,attr"`
}

const apologyText = "We are sorry, our scheduling assistant is unavailable right now. Please call back in a few minutes."

// HandleInboundCall processes POST /webhooks/voice.
//
// Any failure past signature checking degrades to a spoken apology rather
// than an HTTP error: the provider would otherwise play a generic carrier
// message and retry, and this endpoint controls the whole call's fate.
func (h *VoiceWebhookHandler) HandleInboundCall(w http.ResponseWriter, r *http.Request) {
	ctx, span := voiceTracer.Start(r.Context(), "voice.inbound_call")
	defer span.End()

	if h.webhookSecret != "" {
		if !ValidateTelephonySignature(r, h.webhookSecret, h.publicBaseURL+"/webhooks/voice") {
			h.logger.Warn("invalid telephony webhook signature")
			span.RecordError(errors.New("invalid telephony signature"))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	callSID := r.PostFormValue("CallSid")
	rawFrom := r.PostFormValue("From")
	if callSID == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	callerPhone := phone.Normalize(rawFrom, h.dialPrefix)
	anonymous := callerPhone == ""
	span.SetAttributes(
		attribute.String("scheduler.call_sid", callSID),
		attribute.Bool("scheduler.anonymous_caller", anonymous),
	)

	agentCtx, cancel := context.WithTimeout(ctx, h.agentTimeout)
	defer cancel()
	sess, err := h.agent.CreateSession(agentCtx, voiceagent.CreateSessionRequest{
		CallSID:     callSID,
		CallerPhone: callerPhone,
	})
	if err != nil {
		h.logger.Error("voice agent session failed", "call_sid", callSID, "error", err)
		span.RecordError(err)
		h.writeVoiceXML(w, voiceResponse{Say: apologyText, Hangup: &struct{}{}})
		return
	}

	record := &calls.Session{
		SessionID:   sess.SessionID,
		CallSID:     callSID,
		CallerPhone: callerPhone,
		Anonymous:   anonymous,
		Status:      calls.SessionStatusActive,
		StartedAt:   time.Now().UTC(),
	}
	if !anonymous && h.patients != nil {
		if patient, perr := h.patients.FindByPhone(ctx, callerPhone); perr == nil {
			record.PatientID = patient.ID
			if terr := h.patients.TouchLastCall(ctx, patient.ID); terr != nil {
				h.logger.Warn("last call touch failed", "patient_id", patient.ID, "error", terr)
			}
		}
	}
	if err := h.sessions.Save(ctx, record); err != nil {
		// Without the correlation the tool callbacks cannot identify the
		// caller, so this is fatal for the call.
		h.logger.Error("session save failed", "call_sid", callSID, "error", err)
		span.RecordError(err)
		h.writeVoiceXML(w, voiceResponse{Say: apologyText, Hangup: &struct{}{}})
		return
	}
	if h.callLog != nil {
		h.callLog.Record(ctx, calls.CallLogEntry{
			CallSID:     callSID,
			SessionID:   sess.SessionID,
			CallerPhone: callerPhone,
			Status:      "in-progress",
		})
	}

	h.logger.Info("inbound call connected to agent",
		"call_sid", callSID,
		"session_id", sess.SessionID,
		"anonymous", anonymous,
	)
	h.writeVoiceXML(w, voiceResponse{Connect: &voiceConnect{Stream: voiceStream{URL: sess.StreamURL}}})
}

// HandleStatusCallback processes POST /webhooks/voice/status. Pure
// bookkeeping; always 204 so the provider never retries.
func (h *VoiceWebhookHandler) HandleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	if callSID != "" && status != "" && h.callLog != nil {
		h.callLog.UpdateStatus(r.Context(), callSID, status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VoiceWebhookHandler) writeVoiceXML(w http.ResponseWriter, resp voiceResponse) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("voice response encode failed", "error", err)
	}
}
