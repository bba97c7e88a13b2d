package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/services/notify/internal/domain"
	"github.com/opskap1/temnos/services/notify/internal/sender"
)

type mockRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	recipients []domain.Recipient
	consents   map[string]bool // customerID/channel
	markCalls  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		campaigns: make(map[string]*domain.Campaign),
		consents:  make(map[string]bool),
	}
}

func (m *mockRepo) FindCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *mockRepo) ListRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Recipient(nil), m.recipients...), nil
}

func (m *mockRepo) MarkSent(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markCalls++
	c, ok := m.campaigns[id]
	if !ok || c.Status != "sending" {
		return false, nil
	}
	c.Status = "sent"
	return true, nil
}

func (m *mockRepo) HasConsent(ctx context.Context, restaurantID, customerID string, channel domain.Channel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consents[customerID+"/"+string(channel)], nil
}

type capturingSender struct {
	mu       sync.Mutex
	messages []sender.Message
	failFor  map[string]bool // recipient address
}

func (s *capturingSender) Send(ctx context.Context, msg *sender.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFor[msg.Recipient] {
		return fmt.Errorf("delivery refused")
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *capturingSender) sent() []sender.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sender.Message(nil), s.messages...)
}

func newFixture() (*Dispatcher, *mockRepo, *capturingSender) {
	repo := newMockRepo()
	email := &capturingSender{failFor: make(map[string]bool)}
	d := New(repo, sender.Registry{
		domain.ChannelEmail: email,
		domain.ChannelSMS:   email,
	})
	return d, repo, email
}

func seedCampaign(repo *mockRepo) *domain.Campaign {
	c := &domain.Campaign{
		ID:             "camp-1",
		RestaurantID:   "rest-1",
		RestaurantName: "Shawarma House",
		Channel:        domain.ChannelEmail,
		Subject:        "News from {{restaurant_name}}",
		Body:           "Hi {{customer_name}}, use {{promo_code}}!",
		Audience:       "all",
		Status:         "sending",
		PromoCode:      "LAUNCH-ABCD2345",
	}
	repo.campaigns[c.ID] = c
	return c
}

func dispatchEvent() *events.CampaignDispatchRequestedEvent {
	return &events.CampaignDispatchRequestedEvent{
		CampaignID:   "camp-1",
		RestaurantID: "rest-1",
	}
}

func TestDispatchCampaignRendersPerRecipient(t *testing.T) {
	d, repo, email := newFixture()
	seedCampaign(repo)
	repo.recipients = []domain.Recipient{
		{CustomerID: "cust-1", Name: "Amira", Email: "amira@example.test"},
		{CustomerID: "cust-2", Name: "Omar", Email: "omar@example.test"},
	}

	result, err := d.DispatchCampaign(context.Background(), dispatchEvent())
	if err != nil {
		t.Fatalf("DispatchCampaign: %v", err)
	}
	if result.Sent != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	msgs := email.sent()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Subject != "News from Shawarma House" {
		t.Errorf("unexpected subject %q", msgs[0].Subject)
	}
	if msgs[0].Body != "Hi Amira, use LAUNCH-ABCD2345!" {
		t.Errorf("unexpected body %q", msgs[0].Body)
	}
	if msgs[1].Body != "Hi Omar, use LAUNCH-ABCD2345!" {
		t.Errorf("unexpected body %q", msgs[1].Body)
	}

	if repo.campaigns["camp-1"].Status != "sent" {
		t.Errorf("expected campaign marked sent, got %s", repo.campaigns["camp-1"].Status)
	}
}

func TestDispatchTestModeHitsOnlyTestRecipient(t *testing.T) {
	d, repo, email := newFixture()
	seedCampaign(repo)
	repo.recipients = []domain.Recipient{
		{CustomerID: "cust-1", Name: "Amira", Email: "amira@example.test"},
	}

	evt := dispatchEvent()
	evt.TestMode = true
	evt.TestPhone = "owner@bistro.test"

	result, err := d.DispatchCampaign(context.Background(), evt)
	if err != nil {
		t.Fatalf("DispatchCampaign: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("expected one test message, got %d", result.Sent)
	}

	msgs := email.sent()
	if len(msgs) != 1 || msgs[0].Recipient != "owner@bistro.test" {
		t.Fatalf("expected delivery to the test recipient only, got %+v", msgs)
	}
}

func TestDispatchTestModeRequiresRecipient(t *testing.T) {
	d, repo, _ := newFixture()
	seedCampaign(repo)

	evt := dispatchEvent()
	evt.TestMode = true

	if _, err := d.DispatchCampaign(context.Background(), evt); err == nil {
		t.Error("expected a test dispatch without a recipient to fail")
	}
}

func TestDispatchSkipsRecipientsWithoutAddress(t *testing.T) {
	d, repo, email := newFixture()
	seedCampaign(repo)
	repo.recipients = []domain.Recipient{
		{CustomerID: "cust-1", Name: "Amira", Email: "amira@example.test"},
		{CustomerID: "cust-2", Name: "Omar"}, // no email on file
	}

	result, err := d.DispatchCampaign(context.Background(), dispatchEvent())
	if err != nil {
		t.Fatalf("DispatchCampaign: %v", err)
	}
	if result.Sent != 1 || result.Skipped != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if got := len(email.sent()); got != 1 {
		t.Errorf("expected one delivery, got %d", got)
	}
}

func TestDispatchCountsFailuresAndCompletes(t *testing.T) {
	d, repo, email := newFixture()
	seedCampaign(repo)
	repo.recipients = []domain.Recipient{
		{CustomerID: "cust-1", Name: "Amira", Email: "amira@example.test"},
		{CustomerID: "cust-2", Name: "Omar", Email: "omar@example.test"},
	}
	email.failFor["omar@example.test"] = true

	result, err := d.DispatchCampaign(context.Background(), dispatchEvent())
	if err != nil {
		t.Fatalf("DispatchCampaign: %v", err)
	}
	if result.Sent != 1 || result.Failed != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	// A partial run still completes the campaign
	if repo.campaigns["camp-1"].Status != "sent" {
		t.Errorf("expected campaign marked sent, got %s", repo.campaigns["camp-1"].Status)
	}
}

func TestDispatchSkipsAlreadyCompletedCampaign(t *testing.T) {
	d, repo, email := newFixture()
	c := seedCampaign(repo)
	c.Status = "sent"
	repo.recipients = []domain.Recipient{
		{CustomerID: "cust-1", Name: "Amira", Email: "amira@example.test"},
	}

	result, err := d.DispatchCampaign(context.Background(), dispatchEvent())
	if err != nil {
		t.Fatalf("DispatchCampaign: %v", err)
	}
	if result.Sent != 0 {
		t.Errorf("expected no deliveries for a completed campaign, got %d", result.Sent)
	}
	if got := len(email.sent()); got != 0 {
		t.Errorf("expected no messages, got %d", got)
	}
	if repo.markCalls != 0 {
		t.Errorf("expected no completion attempt, got %d", repo.markCalls)
	}
}

func TestDispatchUnknownCampaignFails(t *testing.T) {
	d, _, _ := newFixture()

	if _, err := d.DispatchCampaign(context.Background(), dispatchEvent()); err == nil {
		t.Error("expected dispatching a missing campaign to fail")
	}
}

func TestSendNotificationHonorsConsent(t *testing.T) {
	d, repo, email := newFixture()
	repo.consents["cust-1/sms"] = true

	evt := &events.NotificationEvent{
		Channel:      "sms",
		Recipient:    "+9715xxxxxxx",
		Template:     "Your order {{order_id}} is out for delivery",
		Variables:    map[string]interface{}{"order_id": "order-7"},
		RestaurantID: "rest-1",
		CustomerID:   "cust-1",
	}
	if err := d.SendNotification(context.Background(), evt); err != nil {
		t.Fatalf("SendNotification: %v", err)
	}

	msgs := email.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].Body != "Your order order-7 is out for delivery" {
		t.Errorf("unexpected body %q", msgs[0].Body)
	}

	// Withdraw consent: the next send is suppressed without error
	repo.consents["cust-1/sms"] = false
	if err := d.SendNotification(context.Background(), evt); err != nil {
		t.Fatalf("SendNotification: %v", err)
	}
	if got := len(email.sent()); got != 1 {
		t.Errorf("expected the second send suppressed, got %d messages", got)
	}
}

func TestSendNotificationWithoutCustomerSkipsConsentCheck(t *testing.T) {
	d, _, email := newFixture()

	evt := &events.NotificationEvent{
		Channel:   "email",
		Recipient: "owner@bistro.test",
		Subject:   "Weekly summary",
		Template:  "You had a great week",
	}
	if err := d.SendNotification(context.Background(), evt); err != nil {
		t.Fatalf("SendNotification: %v", err)
	}
	if got := len(email.sent()); got != 1 {
		t.Errorf("expected one message, got %d", got)
	}
}

func TestSendNotificationUnknownChannel(t *testing.T) {
	d, _, _ := newFixture()

	evt := &events.NotificationEvent{Channel: "fax", Recipient: "someone"}
	if err := d.SendNotification(context.Background(), evt); err == nil {
		t.Error("expected an unknown channel to fail")
	}
}
