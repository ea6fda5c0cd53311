package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trustlend/native/lending"
	"trustlend/native/reputation"
)

type recorded struct {
	event     string
	signature string
	body      []byte
}

func TestDispatcherSignsDefaultEvent(t *testing.T) {
	var (
		mu       sync.Mutex
		received []recorded
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		received = append(received, recorded{
			event:     r.Header.Get("X-Trustlend-Event"),
			signature: r.Header.Get("X-Trustlend-Signature"),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	secret := []byte("secret")
	dispatcher, err := NewDispatcher(server.URL, secret)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	dispatcher.Emit(reputation.Minted{TokenID: 1})
	dispatcher.Emit(lending.LoanDefaulted{LoanID: 4, WrittenOff: big.NewInt(90), Circles: []uint64{1, 2}})

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(received)
	}
	waitFor(func() bool { return count() >= 1 }, time.Second)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected only the default event to be delivered, got %d", len(received))
	}
	got := received[0]
	if got.event != lending.TypeLoanDefaulted {
		t.Fatalf("unexpected event header %q", got.event)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(got.body)
	if want := "sha256=" + hex.EncodeToString(mac.Sum(nil)); got.signature != want {
		t.Fatalf("signature mismatch: %s", got.signature)
	}
	var payload Payload
	if err := json.Unmarshal(got.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Attributes["loan_id"] != "4" || payload.Attributes["circles"] != "1,2" {
		t.Fatalf("unexpected attributes: %v", payload.Attributes)
	}
	if payload.DeliveryID == "" {
		t.Fatalf("expected delivery id")
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Enqueue(Payload{Type: lending.TypeLoanRepaid}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDispatcherTopicFilter(t *testing.T) {
	delivered := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get("X-Trustlend-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithTopics(reputation.TypeMinted))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(lending.LoanDefaulted{LoanID: 1})
	dispatcher.Emit(reputation.Minted{TokenID: 9})
	select {
	case got := <-delivered:
		if got != reputation.TypeMinted {
			t.Fatalf("unexpected delivery %s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a delivery")
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
