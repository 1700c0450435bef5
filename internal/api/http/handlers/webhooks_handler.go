package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/api/dto"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/channels"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// WebhooksHandler receives provider callbacks for the email and phone channels.
type WebhooksHandler struct {
	registry      *channels.Registry
	publicBaseURL string
	clock         func() time.Time
	logger        *zap.Logger
}

// NewWebhooksHandler constructs handler. publicBaseURL is the externally visible
// origin Twilio signs requests against; when empty the request origin is used.
func NewWebhooksHandler(registry *channels.Registry, publicBaseURL string, clock func() time.Time, logger *zap.Logger) *WebhooksHandler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhooksHandler{
		registry:      registry,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		clock:         clock,
		logger:        logger,
	}
}

// InboundEmail POST /webhooks/email/:channelId.
func (h *WebhooksHandler) InboundEmail(c *fiber.Ctx) error {
	adapter, err := h.registry.Email(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return err
	}
	var req dto.InboundEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := adapter.ProcessIncomingEmail(c.UserContext(), channels.InboundEmail{
		MessageID:  req.MessageID,
		From:       req.From,
		To:         req.To,
		Subject:    req.Subject,
		Text:       req.Text,
		HTML:       req.HTML,
		InReplyTo:  req.InReplyTo,
		References: req.References,
	})
	if err != nil {
		return err
	}
	return c.Status(ingestStatus(result)).JSON(fiber.Map{"data": result})
}

// IncomingCall POST /webhooks/phone/:channelId/voice. Responds with TwiML that
// plays the greeting and, when recording is enabled, records a voicemail.
func (h *WebhooksHandler) IncomingCall(c *fiber.Ctx) error {
	adapter, params, err := h.phoneRequest(c)
	if err != nil {
		return err
	}
	if _, err := adapter.HandleIncomingCall(c.UserContext(), channels.IncomingCall{
		CallSID:   params["CallSid"],
		From:      params["From"],
		To:        params["To"],
		StartedAt: h.clock(),
	}); err != nil {
		return err
	}

	cfg := adapter.Config()
	var verbs []twiml.Element
	if cfg.VoicemailGreeting != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: cfg.VoicemailGreeting})
	}
	if cfg.RecordingEnabled {
		voicemailURL := h.baseURL(c) + "/webhooks/phone/" + adapter.ChannelID() + "/voicemail"
		record := &twiml.VoiceRecord{MaxLength: "120", PlayBeep: "true"}
		if cfg.TranscriptionEnabled {
			// The transcription callback carries both the recording and its text.
			record.Transcribe = "true"
			record.TranscribeCallback = voicemailURL
			record.Action = voicemailURL + "?await=transcription"
		} else {
			record.Action = voicemailURL
		}
		verbs = append(verbs, record)
	}
	verbs = append(verbs, &twiml.VoiceHangup{})
	return h.sendTwiML(c, twiml.Voice, verbs)
}

// Voicemail POST /webhooks/phone/:channelId/voicemail. The end-of-recording
// callback is only acknowledged when a transcription callback will follow.
func (h *WebhooksHandler) Voicemail(c *fiber.Ctx) error {
	adapter, params, err := h.phoneRequest(c)
	if err != nil {
		return err
	}
	if c.Query("await") == "transcription" {
		return h.sendTwiML(c, twiml.Voice, []twiml.Element{&twiml.VoiceHangup{}})
	}
	if _, err := adapter.HandleVoicemail(c.UserContext(), channels.Voicemail{
		CallSID:       params["CallSid"],
		From:          params["From"],
		RecordingURL:  params["RecordingUrl"],
		Transcription: params["TranscriptionText"],
	}); err != nil {
		return err
	}
	return h.sendTwiML(c, twiml.Voice, []twiml.Element{&twiml.VoiceHangup{}})
}

// InboundSMS POST /webhooks/phone/:channelId/sms.
func (h *WebhooksHandler) InboundSMS(c *fiber.Ctx) error {
	adapter, params, err := h.phoneRequest(c)
	if err != nil {
		return err
	}
	if _, err := adapter.HandleSMS(c.UserContext(), channels.InboundSMS{
		MessageSID: params["MessageSid"],
		From:       params["From"],
		To:         params["To"],
		Body:       params["Body"],
	}); err != nil {
		return err
	}
	return h.sendTwiML(c, twiml.Messages, nil)
}

// SendSMS POST /tickets/:id/sms sends an agent reply by text.
func (h *WebhooksHandler) SendSMS(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SendSMSRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	adapter, err := h.registry.Phone(c.UserContext(), req.ChannelID)
	if err != nil {
		return err
	}
	msg, err := adapter.SendSMS(c.UserContext(), c.Params("id"), req.To, req.Body, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.NewTicketMessageResponse(msg)})
}

// phoneRequest resolves the phone adapter, collects the form fields and checks
// the Twilio signature.
func (h *WebhooksHandler) phoneRequest(c *fiber.Ctx) (*channels.PhoneAdapter, map[string]string, error) {
	adapter, err := h.registry.Phone(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return nil, nil, err
	}
	params := map[string]string{}
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})
	url := h.baseURL(c) + c.OriginalURL()
	if !adapter.ValidateSignature(url, params, c.Get(twilioSignatureHeader)) {
		h.logger.Warn("rejected twilio webhook with bad signature",
			zap.String("channel_id", adapter.ChannelID()),
			zap.String("url", url))
		return nil, nil, apperrors.NewForbidden("invalid webhook signature")
	}
	return adapter, params, nil
}

func (h *WebhooksHandler) baseURL(c *fiber.Ctx) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	return c.BaseURL()
}

func (h *WebhooksHandler) sendTwiML(c *fiber.Ctx, render func([]twiml.Element) (string, error), verbs []twiml.Element) error {
	body, err := render(verbs)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	return c.SendString(body)
}

// ingestStatus answers 201 when a ticket was opened and 200 for appends and redeliveries.
func ingestStatus(result channels.IngestResult) int {
	if result.Created {
		return fiber.StatusCreated
	}
	return fiber.StatusOK
}
