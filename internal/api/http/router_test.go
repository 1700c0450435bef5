package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/api/http/handlers"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/calendar"
	"github.com/deskline/support-desk/internal/channels"
	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/observability"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/repository/memstore"
	"github.com/deskline/support-desk/internal/service"
	"github.com/deskline/support-desk/internal/sla"
	"github.com/deskline/support-desk/internal/worker"
)

// Monday 10:00 UTC.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type nopOutbound struct{}

func (nopOutbound) Enqueue(context.Context, worker.Task) bool { return true }

type nopMailer struct{}

func (nopMailer) Send(context.Context, channels.OutboundEmail) error { return nil }

type nopSMS struct{}

func (nopSMS) SendSMS(context.Context, string, string, string) error { return nil }

type testServer struct {
	app    *fiber.App
	store  *memstore.Store
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cal, err := calendar.Weekly("UTC", []string{"mon", "tue", "wed", "thu", "fri"}, "09:00", "17:00", nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	clock := func() time.Time { return testNow }
	store := memstore.New()
	deps := service.Dependencies{Store: store, Calculator: sla.NewCalculator(cal), Clock: clock, Logger: zap.NewNop()}
	tickets := service.NewTicketService(deps)
	slaService := service.NewSLAService(deps)
	registry := channels.NewRegistry(channels.RegistryDependencies{
		Channels:     store.Channels(),
		Messages:     store.Messages(),
		Tickets:      tickets,
		Outbound:     nopOutbound{},
		NewMailer:    func(domain.EmailConfig, string) channels.Mailer { return nopMailer{} },
		NewSMSSender: func(domain.PhoneConfig) channels.SMSSender { return nopSMS{} },
		Clock:        clock,
	})
	tokens := auth.NewTokenManager("test-secret", "support-desk")
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", nil, metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, slaService),
		Relationships:  handlers.NewRelationshipsHandler(service.NewRelationshipService(deps)),
		SLA:            handlers.NewSLAHandler(slaService, service.NewStatisticsService(deps), clock),
		Channels:       handlers.NewChannelsHandler(service.NewChannelService(deps)),
		Chat:           handlers.NewChatHandler(registry, clock),
		Webhooks:       handlers.NewWebhooksHandler(registry, "https://desk.example.com", clock, zap.NewNop()),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, store: store, tokens: tokens}
}

func (s *testServer) addChannel(t *testing.T, id string, typ domain.ChannelType, cfg domain.ChannelConfig) {
	t.Helper()
	err := s.store.Channels().Create(context.Background(), &domain.Channel{
		ID: id, Name: id, Type: typ, IsActive: true, Config: cfg, CreatedAt: testNow, UpdatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
}

type caller struct {
	id   string
	role domain.Role
}

var (
	anonymous = caller{}
	admin     = caller{"admin-1", domain.RoleAdmin}
	agent     = caller{"agent-1", domain.RoleAgent}
	customer  = caller{"cust-1", domain.RoleCustomer}
)

type result struct {
	status int
	body   map[string]any
	raw    string
}

func (r result) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (r result) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func (s *testServer) call(t *testing.T, who caller, method, path string, payload any) result {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if who.role != "" {
		token, _, err := s.tokens.GenerateToken(who.id, who.role, time.Hour)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) form(t *testing.T, path string, values url.Values) result {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *nethttp.Request) result {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	res := result{status: resp.StatusCode, raw: string(raw)}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) && len(raw) > 0 {
		if err := json.Unmarshal(raw, &res.body); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return res
}

func TestHealthAndAuthentication(t *testing.T) {
	s := newTestServer(t)

	if res := s.call(t, anonymous, fiber.MethodGet, "/health/live", nil); res.status != fiber.StatusOK || res.body["status"] != "alive" {
		t.Fatalf("live: %d %v", res.status, res.body)
	}
	if res := s.call(t, anonymous, fiber.MethodGet, "/health/ready", nil); res.status != fiber.StatusOK {
		t.Fatalf("ready without dependencies: %d", res.status)
	}
	if res := s.call(t, anonymous, fiber.MethodGet, "/metrics", nil); res.status != fiber.StatusOK {
		t.Fatalf("metrics: %d", res.status)
	}

	res := s.call(t, anonymous, fiber.MethodGet, "/api/v1/tickets", nil)
	if res.status != fiber.StatusUnauthorized || res.errorCode() != "UNAUTHORIZED" {
		t.Fatalf("expected 401, got %d %v", res.status, res.body)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/tickets", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-jwt")
	if res := s.send(t, req); res.status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.status)
	}

	forged := auth.NewTokenManager("other-secret", "support-desk")
	token, _, err := forged.GenerateToken("admin-1", domain.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req = httptest.NewRequest(fiber.MethodGet, "/api/v1/tickets", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	if res := s.send(t, req); res.status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", res.status)
	}
}

func TestTicketWorkflowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	bad := s.call(t, customer, fiber.MethodPost, "/api/v1/tickets", map[string]any{"description": "no title"})
	if bad.status != fiber.StatusBadRequest || bad.errorCode() != "VALIDATION_FAILED" {
		t.Fatalf("expected validation failure, got %d %v", bad.status, bad.body)
	}

	created := s.call(t, customer, fiber.MethodPost, "/api/v1/tickets", map[string]any{
		"title":       "Printer on fire",
		"description": "Third floor",
		"priority":    "high",
		"message":     "Please hurry",
	})
	if created.status != fiber.StatusCreated {
		t.Fatalf("create: %d %v", created.status, created.body)
	}
	ticket := created.data()
	id, _ := ticket["id"].(string)
	if id == "" || ticket["status"] != "new" || ticket["created_by"] != "cust-1" {
		t.Fatalf("unexpected ticket %v", ticket)
	}
	if ticket["first_response_deadline"] == nil {
		t.Fatal("expected SLA deadline")
	}

	base := "/api/v1/tickets/" + id
	steps := []struct {
		name   string
		who    caller
		method string
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{"customer cannot open", customer, fiber.MethodPatch, base + "/status", map[string]any{"status": "open"}, fiber.StatusForbidden, "FORBIDDEN"},
		{"agent opens", agent, fiber.MethodPatch, base + "/status", map[string]any{"status": "open"}, fiber.StatusOK, ""},
		{"pending needs comment", agent, fiber.MethodPatch, base + "/status", map[string]any{"status": "pending"}, fiber.StatusUnprocessableEntity, "COMMENT_REQUIRED"},
		{"open to closed is not in the table", agent, fiber.MethodPatch, base + "/status", map[string]any{"status": "closed", "comment": "x"}, fiber.StatusConflict, "INVALID_TRANSITION"},
		{"unknown status", agent, fiber.MethodPatch, base + "/status", map[string]any{"status": "archived"}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"customer cannot reprioritize", customer, fiber.MethodPatch, base + "/priority", map[string]any{"priority": "low"}, fiber.StatusForbidden, "FORBIDDEN"},
		{"agent reprioritizes", agent, fiber.MethodPatch, base + "/priority", map[string]any{"priority": "urgent"}, fiber.StatusOK, ""},
		{"agent replies", agent, fiber.MethodPost, base + "/messages", map[string]any{"content": "On it"}, fiber.StatusCreated, ""},
		{"agent notes", agent, fiber.MethodPost, base + "/messages", map[string]any{"content": "call facilities", "is_internal": true}, fiber.StatusCreated, ""},
		{"customer cannot note", customer, fiber.MethodPost, base + "/messages", map[string]any{"content": "psst", "is_internal": true}, fiber.StatusForbidden, "FORBIDDEN"},
		{"agent resolves", agent, fiber.MethodPatch, base + "/status", map[string]any{"status": "resolved", "comment": "extinguished"}, fiber.StatusOK, ""},
	}
	for _, step := range steps {
		res := s.call(t, step.who, step.method, step.path, step.body)
		if res.status != step.status || res.errorCode() != step.code {
			t.Fatalf("%s: expected %d %q, got %d %v", step.name, step.status, step.code, res.status, res.body)
		}
	}

	msgs := s.call(t, customer, fiber.MethodGet, base+"/messages", nil)
	if items, _ := msgs.body["data"].([]any); len(items) != 2 {
		t.Fatalf("customer should see 2 public messages, got %v", msgs.body["data"])
	}

	transitions := s.call(t, customer, fiber.MethodGet, base+"/transitions", nil)
	items, _ := transitions.body["data"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["to"] != "open" {
		t.Fatalf("customer on resolved ticket may only reopen, got %v", items)
	}

	history := s.call(t, agent, fiber.MethodGet, base+"/history?limit=50", nil)
	if entries, _ := history.body["data"].([]any); len(entries) < 3 {
		t.Fatalf("expected status and priority history, got %v", history.body["data"])
	}

	slaStatus := s.call(t, customer, fiber.MethodGet, base+"/sla", nil)
	first, _ := slaStatus.data()["first_response"].(map[string]any)
	if slaStatus.status != fiber.StatusOK || first["deadline"] == nil {
		t.Fatalf("sla status: %d %v", slaStatus.status, slaStatus.body)
	}

	list := s.call(t, agent, fiber.MethodGet, "/api/v1/tickets?status=resolved&priority=urgent", nil)
	if found, _ := list.body["data"].([]any); len(found) != 1 {
		t.Fatalf("filtered list: %v", list.body)
	}
	if res := s.call(t, agent, fiber.MethodGet, "/api/v1/tickets?status=bogus", nil); res.status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", res.status)
	}

	stranger := caller{"cust-2", domain.RoleCustomer}
	if res := s.call(t, stranger, fiber.MethodGet, base, nil); res.status != fiber.StatusForbidden {
		t.Fatalf("expected other customer to be denied, got %d", res.status)
	}
	if res := s.call(t, agent, fiber.MethodGet, "/api/v1/tickets/missing", nil); res.status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d %v", res.status, res.body)
	}
}

func TestRelationshipsAndMergeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	newTicket := func(title string) string {
		res := s.call(t, customer, fiber.MethodPost, "/api/v1/tickets", map[string]any{"title": title, "description": "d", "message": title})
		if res.status != fiber.StatusCreated {
			t.Fatalf("create %s: %d %v", title, res.status, res.body)
		}
		return res.data()["id"].(string)
	}
	a, b, c := newTicket("a"), newTicket("b"), newTicket("c")

	link := s.call(t, agent, fiber.MethodPost, "/api/v1/tickets/"+a+"/relationships", map[string]any{"child_ticket_id": c, "relationship_type": "link"})
	if link.status != fiber.StatusCreated {
		t.Fatalf("link: %d %v", link.status, link.body)
	}
	dup := s.call(t, agent, fiber.MethodPost, "/api/v1/tickets/"+a+"/relationships", map[string]any{"child_ticket_id": c, "relationship_type": "link"})
	if dup.status != fiber.StatusConflict || dup.errorCode() != "DUPLICATE_EDGE" {
		t.Fatalf("duplicate edge: %d %v", dup.status, dup.body)
	}
	if res := s.call(t, agent, fiber.MethodPost, "/api/v1/tickets/"+a+"/relationships", map[string]any{"child_ticket_id": c, "relationship_type": "merge"}); res.status != fiber.StatusBadRequest {
		t.Fatalf("merge edges are not created directly, got %d", res.status)
	}
	if res := s.call(t, customer, fiber.MethodPost, "/api/v1/tickets/"+a+"/merge", map[string]any{"secondary_ticket_id": b}); res.status != fiber.StatusForbidden {
		t.Fatalf("customer merge: %d", res.status)
	}
	if res := s.call(t, agent, fiber.MethodPost, "/api/v1/tickets/"+a+"/merge", map[string]any{"secondary_ticket_id": a}); res.errorCode() != "SELF_MERGE" {
		t.Fatalf("self merge: %d %v", res.status, res.body)
	}

	merged := s.call(t, agent, fiber.MethodPost, "/api/v1/tickets/"+a+"/merge", map[string]any{"secondary_ticket_id": b})
	if merged.status != fiber.StatusOK {
		t.Fatalf("merge: %d %v", merged.status, merged.body)
	}
	if moved, _ := merged.data()["moved_messages"].(float64); moved != 1 {
		t.Fatalf("expected one moved message, got %v", merged.data())
	}
	secondary, _ := merged.data()["secondary"].(map[string]any)
	if secondary["status"] != "closed" {
		t.Fatalf("secondary should be closed, got %v", secondary)
	}

	rels := s.call(t, agent, fiber.MethodGet, "/api/v1/tickets/"+b+"/relationships", nil)
	if rels.data()["merged_into"] != a {
		t.Fatalf("expected merged_into %s, got %v", a, rels.data())
	}

	if res := s.call(t, agent, fiber.MethodDelete, "/api/v1/tickets/"+a+"/relationships/"+c, nil); res.status != fiber.StatusNoContent {
		t.Fatalf("delete link: %d %v", res.status, res.body)
	}
	if res := s.call(t, agent, fiber.MethodDelete, "/api/v1/tickets/"+a+"/relationships/"+c, nil); res.errorCode() != "RELATIONSHIP_NOT_FOUND" {
		t.Fatalf("second delete: %d %v", res.status, res.body)
	}
}

func TestSLAPoliciesAndStatisticsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	policy := map[string]any{
		"name":                 "Gold",
		"priority":             []string{"high", "urgent"},
		"first_response_hours": 1,
		"resolution_hours":     4,
	}
	if res := s.call(t, agent, fiber.MethodPost, "/api/v1/sla-policies", policy); res.status != fiber.StatusForbidden {
		t.Fatalf("agent cannot create policies, got %d", res.status)
	}
	if res := s.call(t, admin, fiber.MethodPost, "/api/v1/sla-policies", map[string]any{"name": "x", "priority": []string{"soon"}, "first_response_hours": 1, "resolution_hours": 1}); res.status != fiber.StatusBadRequest {
		t.Fatalf("bad priority accepted: %d", res.status)
	}
	created := s.call(t, admin, fiber.MethodPost, "/api/v1/sla-policies", policy)
	if created.status != fiber.StatusCreated {
		t.Fatalf("create policy: %d %v", created.status, created.body)
	}
	policyID := created.data()["id"].(string)

	defaults := s.call(t, agent, fiber.MethodGet, "/api/v1/sla-policies/defaults", nil)
	if items, _ := defaults.body["data"].([]any); len(items) != len(domain.AllTicketPriorities) {
		t.Fatalf("defaults: %v", defaults.body)
	}

	ticket := s.call(t, customer, fiber.MethodPost, "/api/v1/tickets", map[string]any{"title": "t", "description": "d"})
	id := ticket.data()["id"].(string)
	assigned := s.call(t, agent, fiber.MethodPut, "/api/v1/tickets/"+id+"/sla-policy", map[string]any{"policy_id": policyID})
	if assigned.status != fiber.StatusOK || assigned.data()["sla_policy_id"] != policyID {
		t.Fatalf("assign policy: %d %v", assigned.status, assigned.body)
	}

	if res := s.call(t, agent, fiber.MethodPost, "/api/v1/sla/evaluate", nil); res.status != fiber.StatusForbidden {
		t.Fatalf("agent cannot trigger evaluation, got %d", res.status)
	}
	if res := s.call(t, admin, fiber.MethodPost, "/api/v1/sla/evaluate", nil); res.status != fiber.StatusOK {
		t.Fatalf("evaluate: %d %v", res.status, res.body)
	}

	stats := s.call(t, agent, fiber.MethodGet, "/api/v1/statistics/tickets", nil)
	counts, _ := stats.data()["statusCounts"].(map[string]any)
	if stats.status != fiber.StatusOK || counts["new"] != float64(1) {
		t.Fatalf("statistics: %d %v", stats.status, stats.body)
	}
	if res := s.call(t, customer, fiber.MethodGet, "/api/v1/statistics/tickets", nil); res.status != fiber.StatusForbidden {
		t.Fatalf("customer statistics: %d", res.status)
	}

	if res := s.call(t, admin, fiber.MethodDelete, "/api/v1/sla-policies/"+policyID, nil); res.status != fiber.StatusNoContent {
		t.Fatalf("delete policy: %d %v", res.status, res.body)
	}
}

func TestChannelAdministrationOverHTTP(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"name": "Hotline",
		"type": "phone",
		"config": map[string]any{
			"phone_number": "+15550001111",
			"auth_token":   "s3cret",
			"sms_enabled":  true,
		},
	}
	if res := s.call(t, agent, fiber.MethodPost, "/api/v1/channels", body); res.status != fiber.StatusForbidden {
		t.Fatalf("agent channel admin: %d", res.status)
	}
	created := s.call(t, admin, fiber.MethodPost, "/api/v1/channels", body)
	if created.status != fiber.StatusCreated {
		t.Fatalf("create channel: %d %v", created.status, created.body)
	}
	cfg, _ := created.data()["config"].(map[string]any)
	if cfg["auth_token"] != "********" || created.data()["is_active"] != true {
		t.Fatalf("expected masked token and active channel, got %v", created.data())
	}
	id := created.data()["id"].(string)

	body["config"].(map[string]any)["auth_token"] = "********"
	body["is_active"] = false
	if res := s.call(t, admin, fiber.MethodPut, "/api/v1/channels/"+id, body); res.status != fiber.StatusOK {
		t.Fatalf("update channel: %d %v", res.status, res.body)
	}
	stored, err := s.store.Channels().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if stored.Config.Phone.AuthToken != "s3cret" || stored.IsActive {
		t.Fatalf("masked token should keep stored secret, got %+v", stored.Config.Phone)
	}

	if res := s.call(t, admin, fiber.MethodPost, "/api/v1/channels", map[string]any{"name": "x", "type": "fax"}); res.status != fiber.StatusBadRequest {
		t.Fatalf("bad type: %d", res.status)
	}
	if res := s.call(t, admin, fiber.MethodDelete, "/api/v1/channels/"+id, nil); res.status != fiber.StatusNoContent {
		t.Fatalf("delete: %d %v", res.status, res.body)
	}
}

func TestChatOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.addChannel(t, "chat-1", domain.ChannelTypeChat, domain.ChannelConfig{Chat: &domain.ChatConfig{WidgetTitle: "Help"}})
	s.addChannel(t, "mail-1", domain.ChannelTypeEmail, domain.ChannelConfig{Email: &domain.EmailConfig{}})

	avail := s.call(t, anonymous, fiber.MethodGet, "/chat/chat-1/availability", nil)
	if avail.data()["available"] != true || avail.data()["widget_title"] != "Help" {
		t.Fatalf("availability: %v", avail.body)
	}
	if res := s.call(t, anonymous, fiber.MethodGet, "/chat/mail-1/availability", nil); res.errorCode() != "CHANNEL_UNAVAILABLE" {
		t.Fatalf("wrong channel type: %d %v", res.status, res.body)
	}

	started := s.call(t, anonymous, fiber.MethodPost, "/chat/chat-1", map[string]any{
		"visitor_name":    "Ada",
		"visitor_email":   "ada@example.com",
		"initial_message": "Hello?",
	})
	if started.status != fiber.StatusCreated || started.data()["created"] != true {
		t.Fatalf("start chat: %d %v", started.status, started.body)
	}
	chatID := started.data()["ticket_id"].(string)

	if res := s.call(t, anonymous, fiber.MethodPost, "/chat/chat-1/"+chatID+"/messages", map[string]any{"content": "anyone there?"}); res.status != fiber.StatusCreated {
		t.Fatalf("visitor message: %d %v", res.status, res.body)
	}
	agentPath := "/api/v1/chats/chat-1/" + chatID
	if res := s.call(t, agent, fiber.MethodPost, agentPath+"/messages", map[string]any{"content": "hi"}); res.errorCode() != "NO_AGENT_ASSIGNED" {
		t.Fatalf("expected NO_AGENT_ASSIGNED, got %d %v", res.status, res.body)
	}
	if res := s.call(t, agent, fiber.MethodPatch, "/api/v1/tickets/"+chatID+"/assignee", map[string]any{"assignee_id": "agent-1"}); res.status != fiber.StatusOK {
		t.Fatalf("assign: %d %v", res.status, res.body)
	}
	reply := s.call(t, agent, fiber.MethodPost, agentPath+"/messages", map[string]any{"content": "hi Ada"})
	if reply.status != fiber.StatusCreated || reply.data()["sender_id"] != "agent-1" || reply.data()["sender_type"] != "agent" {
		t.Fatalf("agent reply: %d %v", reply.status, reply.body)
	}

	if res := s.call(t, customer, fiber.MethodPost, agentPath+"/end", nil); res.status != fiber.StatusForbidden {
		t.Fatalf("customer ending chat: %d", res.status)
	}
	ended := s.call(t, agent, fiber.MethodPost, agentPath+"/end", map[string]any{"summary": "printer fixed"})
	if ended.status != fiber.StatusOK || ended.data()["status"] != "closed" {
		t.Fatalf("end chat: %d %v", ended.status, ended.body)
	}
	if res := s.call(t, anonymous, fiber.MethodPost, "/chat/chat-1/"+chatID+"/messages", map[string]any{"content": "wait"}); res.errorCode() != "CHAT_CLOSED" {
		t.Fatalf("expected CHAT_CLOSED, got %d %v", res.status, res.body)
	}
}

func TestEmailWebhookIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	s.addChannel(t, "mail-1", domain.ChannelTypeEmail, domain.ChannelConfig{Email: &domain.EmailConfig{}})

	email := map[string]any{
		"message_id": "<abc@mail.example.com>",
		"from":       "bob@example.com",
		"subject":    "VPN down",
		"text":       "Cannot connect",
	}
	first := s.call(t, anonymous, fiber.MethodPost, "/webhooks/email/mail-1", email)
	if first.status != fiber.StatusCreated || first.data()["created"] != true {
		t.Fatalf("first delivery: %d %v", first.status, first.body)
	}
	again := s.call(t, anonymous, fiber.MethodPost, "/webhooks/email/mail-1", email)
	if again.status != fiber.StatusOK || again.data()["duplicate"] != true || again.data()["ticket_id"] != first.data()["ticket_id"] {
		t.Fatalf("redelivery: %d %v", again.status, again.body)
	}

	reply := s.call(t, anonymous, fiber.MethodPost, "/webhooks/email/mail-1", map[string]any{
		"message_id":  "<def@mail.example.com>",
		"from":        "bob@example.com",
		"text":        "Still broken",
		"in_reply_to": "<abc@mail.example.com>",
	})
	if reply.status != fiber.StatusOK || reply.data()["ticket_id"] != first.data()["ticket_id"] {
		t.Fatalf("threaded reply: %d %v", reply.status, reply.body)
	}

	if res := s.call(t, anonymous, fiber.MethodPost, "/webhooks/email/mail-1", map[string]any{"text": "no sender"}); res.status != fiber.StatusBadRequest {
		t.Fatalf("missing from: %d", res.status)
	}
}

func TestTwilioWebhooks(t *testing.T) {
	s := newTestServer(t)
	s.addChannel(t, "phone-1", domain.ChannelTypePhone, domain.ChannelConfig{Phone: &domain.PhoneConfig{
		PhoneNumber:       "+15557654321",
		VoicemailGreeting: "Leave a message",
		RecordingEnabled:  true,
	}})
	s.addChannel(t, "phone-signed", domain.ChannelTypePhone, domain.ChannelConfig{Phone: &domain.PhoneConfig{AuthToken: "tok"}})

	call := url.Values{"CallSid": {"CA100"}, "From": {"+15551234567"}, "To": {"+15557654321"}}
	voice := s.form(t, "/webhooks/phone/phone-1/voice", call)
	if voice.status != fiber.StatusOK || !strings.Contains(voice.raw, "Leave a message") || !strings.Contains(voice.raw, "/webhooks/phone/phone-1/voicemail") {
		t.Fatalf("voice twiml: %d %s", voice.status, voice.raw)
	}
	if res := s.form(t, "/webhooks/phone/phone-1/voice", call); res.status != fiber.StatusOK {
		t.Fatalf("voice redelivery: %d", res.status)
	}

	sms := url.Values{"MessageSid": {"SM1"}, "From": {"+15551234567"}, "To": {"+15557654321"}, "Body": {"also my fax is broken"}}
	if res := s.form(t, "/webhooks/phone/phone-1/sms", sms); res.status != fiber.StatusOK {
		t.Fatalf("sms: %d %s", res.status, res.raw)
	}

	tickets, err := s.store.Tickets().ListWithFilter(context.Background(), repository.TicketFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected the call and the sms on one ticket, got %d tickets", len(tickets))
	}
	msgs, err := s.store.Messages().ListByTicket(context.Background(), tickets[0].ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected call notice and sms, got %d messages", len(msgs))
	}

	if res := s.form(t, "/webhooks/phone/phone-signed/sms", sms); res.status != fiber.StatusForbidden {
		t.Fatalf("unsigned request to a signed channel: %d %s", res.status, res.raw)
	}
}
