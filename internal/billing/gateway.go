package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type IntentRequest struct {
	AmountCents int64
	Currency    string
	BookingID   string
	UserID      string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string // gateway vocabulary, see FromGatewayStatus
}

type Refund struct {
	ID     string
	Status string
}

// Gateway is the external payment processor. The platform only ever talks
// to it outside of database transactions.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, intentID, reason string) (Refund, error)
}

// MockGateway synthesizes intents for test and demo environments. Every
// created intent behaves like an immediately succeeded gateway response.
type MockGateway struct {
	mu      sync.Mutex
	intents map[string]Intent
	creates int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{intents: map[string]Intent{}}
}

func (g *MockGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Status:       "succeeded",
	}

	g.mu.Lock()
	g.intents[id] = in
	g.creates++
	g.mu.Unlock()
	return in, nil
}

func (g *MockGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	g.mu.Lock()
	in, ok := g.intents[intentID]
	g.mu.Unlock()
	if !ok {
		return Intent{}, fmt.Errorf("%w: unknown intent %s", ErrGateway, intentID)
	}
	return in, nil
}

func (g *MockGateway) Refund(ctx context.Context, intentID, reason string) (Refund, error) {
	g.mu.Lock()
	_, ok := g.intents[intentID]
	g.mu.Unlock()
	if !ok {
		return Refund{}, fmt.Errorf("%w: unknown intent %s", ErrGateway, intentID)
	}
	return Refund{ID: "re_mock_" + uuid.NewString()[:8], Status: "succeeded"}, nil
}

// CreateCalls reports how many intents were created (test observability).
func (g *MockGateway) CreateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates
}
