// Package checkout is a payment.Widget backed by a small local web server.
// Open registers a checkout session and hands the payer a URL; the hosted
// page loads the provider script, collects the payment and posts the result
// back to the session's callback endpoints.
package checkout

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"farmer-registration/apperr"
	"farmer-registration/models"
	"farmer-registration/payment"
)

type outcome struct {
	proof models.PaymentProof
	err   error
}

type session struct {
	checkout payment.Checkout
	result   chan outcome
}

// Server hosts checkout pages. Present is called with the page URL every
// time a payment is opened.
type Server struct {
	scriptURL  string
	baseURL    string
	present    func(url string)
	httpClient *http.Client
	logger     *slog.Logger
	engine     *gin.Engine

	mu       sync.Mutex
	script   []byte
	sessions map[string]*session
}

// Config configures a Server
type Config struct {
	ScriptURL  string
	BaseURL    string
	Present    func(url string)
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewServer builds the checkout routes. It does not listen; mount Handler()
// on an http.Server.
func NewServer(cfg Config) *Server {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Present == nil {
		cfg.Present = func(string) {}
	}
	s := &Server{
		scriptURL:  cfg.ScriptURL,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		present:    cfg.Present,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		sessions:   make(map[string]*session),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(pageTemplate)
	router.GET("/checkout.js", s.serveScript)
	router.GET("/pay/:id", s.servePage)
	router.POST("/pay/:id/success", s.paymentSucceeded)
	router.POST("/pay/:id/failed", s.paymentFailed)
	router.POST("/pay/:id/dismiss", s.paymentDismissed)
	s.engine = router
	return s
}

// Handler returns the HTTP handler for the checkout routes
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Load fetches the provider script. Once fetched it is served from memory.
func (s *Server) Load(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.script != nil
	s.mu.Unlock()
	if loaded {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.scriptURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create script request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch checkout script: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("checkout script returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read checkout script: %w", err)
	}

	s.mu.Lock()
	s.script = body
	s.mu.Unlock()
	s.logger.Info("checkout script loaded", "url", s.scriptURL, "bytes", len(body))
	return nil
}

// Open registers a session, presents its URL and waits for the payer
func (s *Server) Open(ctx context.Context, co payment.Checkout) (models.PaymentProof, error) {
	id := uuid.New().String()
	sess := &session{checkout: co, result: make(chan outcome, 1)}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}()

	url := fmt.Sprintf("%s/pay/%s", s.baseURL, id)
	s.logger.Info("checkout session opened", "session_id", id, "order_id", co.Order.OrderID)
	s.present(url)

	select {
	case out := <-sess.result:
		return out.proof, out.err
	case <-ctx.Done():
		return models.PaymentProof{}, ctx.Err()
	}
}

// Pending lists open session ids
func (s *Server) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) lookup(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// resolve delivers the first outcome for a session; later callbacks are ignored
func (s *Server) resolve(ctx *gin.Context, out outcome) {
	sess, ok := s.lookup(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Checkout session not found"})
		return
	}
	select {
	case sess.result <- out:
		ctx.JSON(http.StatusOK, gin.H{"success": true})
	default:
		ctx.JSON(http.StatusConflict, models.ErrorResponse{Message: "Checkout session already completed"})
	}
}

func (s *Server) serveScript(ctx *gin.Context) {
	s.mu.Lock()
	script := s.script
	s.mu.Unlock()
	if script == nil {
		ctx.String(http.StatusNotFound, "checkout script not loaded")
		return
	}
	ctx.Data(http.StatusOK, "application/javascript", script)
}

type pageData struct {
	SessionID   string
	Key         string
	Amount      int64
	Currency    string
	OrderID     string
	Merchant    string
	Description string
	Theme       string
	Prefill     payment.Prefill
	ReferenceID string
}

func (s *Server) servePage(ctx *gin.Context) {
	id := ctx.Param("id")
	sess, ok := s.lookup(id)
	if !ok {
		ctx.String(http.StatusNotFound, "checkout session not found")
		return
	}
	co := sess.checkout
	ctx.HTML(http.StatusOK, "checkout", pageData{
		SessionID:   id,
		Key:         co.Order.KeyID,
		Amount:      co.Order.Amount,
		Currency:    co.Order.Currency,
		OrderID:     co.Order.OrderID,
		Merchant:    co.Merchant,
		Description: co.Description,
		Theme:       co.Theme,
		Prefill:     co.Prefill,
		ReferenceID: co.ReferenceID,
	})
}

func (s *Server) paymentSucceeded(ctx *gin.Context) {
	var proof models.PaymentProof
	if err := ctx.ShouldBindJSON(&proof); err != nil || proof.PaymentID == "" {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid payment response"})
		return
	}
	s.resolve(ctx, outcome{proof: proof})
}

func (s *Server) paymentFailed(ctx *gin.Context) {
	var body struct {
		Description string `json:"description"`
	}
	_ = ctx.ShouldBindJSON(&body)
	s.resolve(ctx, outcome{err: &apperr.PaymentFailure{Description: body.Description}})
}

func (s *Server) paymentDismissed(ctx *gin.Context) {
	s.resolve(ctx, outcome{err: apperr.ErrPaymentCancelled})
}

var pageTemplate = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Description}}</title>
<script src="/checkout.js"></script>
</head>
<body>
<p>Reference: {{.ReferenceID}}</p>
<script>
(function () {
  var base = "/pay/{{.SessionID}}";
  function post(path, body) {
    return fetch(base + path, {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify(body || {})
    });
  }
  var rzp = new Razorpay({
    key: {{.Key}},
    amount: {{.Amount}},
    currency: {{.Currency}},
    name: {{.Merchant}},
    description: {{.Description}},
    order_id: {{.OrderID}},
    prefill: {name: {{.Prefill.Name}}, contact: {{.Prefill.Contact}}},
    theme: {color: {{.Theme}}},
    handler: function (resp) { post("/success", resp).then(function () { window.close(); }); },
    modal: {ondismiss: function () { post("/dismiss"); }}
  });
  rzp.on("payment.failed", function (resp) {
    post("/failed", {description: resp.error && resp.error.description});
  });
  rzp.open();
})();
</script>
</body>
</html>
`))
