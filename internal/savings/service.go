package savings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/metrics"
	"github.com/habahaba/roundup-savings/internal/roundup"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SpendRequest is one spend event to round up.
type SpendRequest struct {
	UserID      string
	PhoneNumber string
	Amount      decimal.Decimal
	Assisted    bool
	// Simulated records the decision as completed without moving money.
	Simulated bool
}

// SpendResult is the outcome of ProcessSpend. Decision is always set once the
// amount was accepted, even when storing or transferring failed.
type SpendResult struct {
	Transaction domain.Transaction     `json:"transaction"`
	Decision    domain.RoundupDecision `json:"decision"`
	Profile     domain.SpendingProfile `json:"profile"`
	JobID       string                 `json:"job_id,omitempty"`
}

// WithdrawRequest sends part of the savings balance back to the user.
type WithdrawRequest struct {
	UserID      string
	PhoneNumber string
	Amount      decimal.Decimal
	Reason      string
}

// Service runs the roundup pipeline around the decision engine: history
// snapshot, profile, decision, record, transfer.
type Service struct {
	store      Store
	engine     *roundup.Engine
	gateway    PaymentGateway
	publisher  Publisher
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string

	muMap map[string]*sync.Mutex
	mapMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher emits change events after every write.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithDispatcher runs transfers in the background instead of inline.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the transaction id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// NewService wires the pipeline.
func NewService(store Store, engine *roundup.Engine, gateway PaymentGateway, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  engine,
		gateway: gateway,
		log:     zerolog.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
		muMap:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkAmount rejects amounts the gateway cannot move: negatives and
// fractions of a cent.
func checkAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", roundup.ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s has more than two decimal places", roundup.ErrInvalidAmount, amount)
	}
	return nil
}

func (s *Service) getUserLock(userID string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	if _, exists := s.muMap[userID]; !exists {
		s.muMap[userID] = &sync.Mutex{}
	}
	return s.muMap[userID]
}

// Preview computes the decision for a spend against the user's current
// history without recording anything.
func (s *Service) Preview(ctx context.Context, userID string, amount decimal.Decimal, assisted bool) (domain.RoundupDecision, domain.SpendingProfile, error) {
	if err := checkAmount(amount); err != nil {
		return domain.RoundupDecision{}, domain.SpendingProfile{}, err
	}
	history, err := s.countableHistory(ctx, userID)
	if err != nil {
		return domain.RoundupDecision{}, domain.SpendingProfile{}, err
	}
	profile := roundup.ComputeProfile(history, amount)

	d, err := s.engine.Decide(ctx, amount, profile, assisted)
	if err != nil {
		return domain.RoundupDecision{}, profile, err
	}
	return d, profile, nil
}

// ProcessSpend decides the roundup for one spend, appends the record to the
// user's history and starts the transfer of the saving. Appends for the same
// user are serialised so every decision sees the previous one.
func (s *Service) ProcessSpend(ctx context.Context, req SpendRequest) (SpendResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return SpendResult{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if err := checkAmount(req.Amount); err != nil {
		return SpendResult{}, err
	}

	log := s.log.With().Str("user_id", req.UserID).Str("amount", req.Amount.String()).Logger()

	res, err := s.recordSpend(ctx, req)
	if err != nil {
		return res, err
	}

	log.Info().
		Str("transaction_id", res.Transaction.ID).
		Str("saved", res.Decision.Saved.String()).
		Str("source", string(res.Decision.Source)).
		Str("status", string(res.Transaction.Status)).
		Msg("Roundup recorded")

	if res.Transaction.Status != domain.StatusPending {
		return res, nil
	}

	if s.dispatcher != nil {
		jobID, err := s.dispatcher.Dispatch(ctx, res.Transaction.ID)
		if err == nil {
			res.JobID = jobID
			return res, nil
		}
		log.Warn().Err(err).Str("transaction_id", res.Transaction.ID).Msg("Dispatch failed, transferring inline")
	}

	if err := s.InitiateTransfer(ctx, res.Transaction.ID, true); err != nil {
		if tx, getErr := s.store.Get(ctx, res.Transaction.ID); getErr == nil {
			res.Transaction = tx
		}
		return res, err
	}
	if tx, err := s.store.Get(ctx, res.Transaction.ID); err == nil {
		res.Transaction = tx
	}
	return res, nil
}

func (s *Service) recordSpend(ctx context.Context, req SpendRequest) (SpendResult, error) {
	lock := s.getUserLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.countableHistory(ctx, req.UserID)
	if err != nil {
		return SpendResult{}, err
	}
	profile := roundup.ComputeProfile(history, req.Amount)

	d, err := s.engine.Decide(ctx, req.Amount, profile, req.Assisted)
	if err != nil {
		return SpendResult{}, err
	}
	s.metrics.RecordDecision(string(d.Source), d.Saved.InexactFloat64())

	tx := domain.NewRoundup(s.newID(), req.UserID, req.PhoneNumber, req.Amount, d, req.Simulated, s.now())
	res := SpendResult{Transaction: tx, Decision: d, Profile: profile}

	if err := s.store.Append(ctx, tx); err != nil {
		s.metrics.RecordPersistenceError()
		return res, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.publish(ctx, domain.EventTransactionCreated, tx)

	return res, nil
}

// InitiateTransfer charges the saving of a pending roundup. When final is
// set a failed charge marks the record failed; otherwise the record stays
// pending so the caller can retry. Records that are no longer pending, or
// already carry a reference, are left alone.
func (s *Service) InitiateTransfer(ctx context.Context, transactionID string, final bool) error {
	tx, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("InitiateTransfer: load %s: %w", transactionID, err)
	}

	lock := s.getUserLock(tx.UserID)
	lock.Lock()
	defer lock.Unlock()

	// reload under the lock; a webhook may have settled it meanwhile
	tx, err = s.store.Get(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("InitiateTransfer: reload %s: %w", transactionID, err)
	}
	if tx.Status != domain.StatusPending || tx.Reference != "" || tx.Kind != domain.KindRoundup {
		return nil
	}

	log := s.log.With().Str("transaction_id", tx.ID).Str("user_id", tx.UserID).Logger()

	result, err := s.gateway.Charge(ctx, ChargeRequest{
		Reference:   tx.ID,
		UserID:      tx.UserID,
		PhoneNumber: tx.PhoneNumber,
		Amount:      tx.AmountSaved,
		Metadata: map[string]string{
			"transaction_id":  tx.ID,
			"original_amount": tx.AmountSpent.String(),
			"rounded_to":      tx.RoundedTo.String(),
			"ai_reason":       tx.Rationale,
		},
	})
	if err == nil && result.Status == GatewayFailed {
		err = errors.New(result.Message)
	}
	if err != nil {
		log.Warn().Err(err).Bool("final", final).Msg("Savings charge failed")
		if !final {
			return fmt.Errorf("%w: %w", ErrTransfer, err)
		}
		if ferr := s.settle(ctx, tx, domain.StatusFailed); ferr != nil {
			return fmt.Errorf("%w: %w (marking failed: %v)", ErrTransfer, err, ferr)
		}
		s.metrics.RecordTransfer("failed")
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	tx = tx.WithReference(result.Reference, s.now()).WithCheckout(result.CheckoutURL)
	if result.Status == GatewaySuccess {
		if err := s.settle(ctx, tx, domain.StatusCompleted); err != nil {
			return err
		}
		s.metrics.RecordTransfer("completed")
		return nil
	}

	if err := s.store.Update(ctx, tx); err != nil {
		s.metrics.RecordPersistenceError()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.publish(ctx, domain.EventTransactionUpdated, tx)
	s.metrics.RecordTransfer("initiated")
	log.Info().Str("reference", tx.Reference).Str("checkout_url", tx.CheckoutURL).Msg("Savings charge initiated")
	return nil
}

// ConfirmTransfer applies a provider confirmation to the record carrying
// reference. Terminal records are returned unchanged.
func (s *Service) ConfirmTransfer(ctx context.Context, reference string, success bool, note string) (domain.Transaction, error) {
	if reference == "" {
		return domain.Transaction{}, fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}

	tx, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ConfirmTransfer: %s: %w", reference, err)
	}

	lock := s.getUserLock(tx.UserID)
	lock.Lock()
	defer lock.Unlock()

	tx, err = s.store.Get(ctx, tx.ID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ConfirmTransfer: reload %s: %w", reference, err)
	}
	if tx.Status.Terminal() {
		s.log.Debug().Str("reference", reference).Str("status", string(tx.Status)).Msg("Confirmation for settled transaction ignored")
		return tx, nil
	}

	to := domain.StatusCompleted
	result := "completed"
	if !success {
		to = domain.StatusFailed
		result = "failed"
	}
	if err := s.settle(ctx, tx, to); err != nil {
		return tx, err
	}

	if tx.Kind == domain.KindWithdrawal {
		s.metrics.RecordWithdrawal(result)
	} else {
		s.metrics.RecordTransfer(result)
	}
	s.log.Info().
		Str("reference", reference).
		Str("transaction_id", tx.ID).
		Str("status", string(to)).
		Str("note", note).
		Msg("Transfer confirmed")

	return s.store.Get(ctx, tx.ID)
}

// Withdraw pays amount out of the user's available balance.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (domain.Transaction, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return domain.Transaction{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if req.PhoneNumber == "" {
		return domain.Transaction{}, fmt.Errorf("%w: phone_number is required", ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("%w: withdrawal amount must be positive, got %s", roundup.ErrInvalidAmount, req.Amount)
	}
	if err := checkAmount(req.Amount); err != nil {
		return domain.Transaction{}, err
	}

	lock := s.getUserLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.store.ListByUser(ctx, req.UserID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Withdraw: list history: %w", err)
	}
	balance := AvailableBalance(history)
	if req.Amount.GreaterThan(balance) {
		s.metrics.RecordWithdrawal("rejected")
		return domain.Transaction{}, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, req.Amount, balance)
	}

	tx := domain.NewWithdrawal(s.newID(), req.UserID, req.PhoneNumber, req.Amount, req.Reason, s.now())
	if err := s.store.Append(ctx, tx); err != nil {
		s.metrics.RecordPersistenceError()
		return tx, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.publish(ctx, domain.EventTransactionCreated, tx)

	result, err := s.gateway.Payout(ctx, PayoutRequest{
		Reference:   tx.ID,
		UserID:      tx.UserID,
		PhoneNumber: tx.PhoneNumber,
		Amount:      req.Amount,
		Reason:      tx.Rationale,
	})
	if err == nil && result.Status == GatewayFailed {
		err = errors.New(result.Message)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Withdrawal payout failed")
		if ferr := s.settle(ctx, tx, domain.StatusFailed); ferr != nil {
			return tx, fmt.Errorf("%w: %w (marking failed: %v)", ErrTransfer, err, ferr)
		}
		s.metrics.RecordWithdrawal("failed")
		failed, _ := s.store.Get(ctx, tx.ID)
		return failed, fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	tx = tx.WithReference(result.Reference, s.now())
	if result.Status == GatewaySuccess {
		if err := s.settle(ctx, tx, domain.StatusCompleted); err != nil {
			return tx, err
		}
		s.metrics.RecordWithdrawal("completed")
		return s.store.Get(ctx, tx.ID)
	}

	if err := s.store.Update(ctx, tx); err != nil {
		s.metrics.RecordPersistenceError()
		return tx, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.publish(ctx, domain.EventTransactionUpdated, tx)
	s.metrics.RecordWithdrawal("initiated")
	return tx, nil
}

// History returns every record of the user, failed ones included.
func (s *Service) History(ctx context.Context, userID string) ([]domain.Transaction, error) {
	history, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return history, nil
}

// Profile summarises the user's countable history.
func (s *Service) Profile(ctx context.Context, userID string) (domain.SpendingProfile, error) {
	history, err := s.countableHistory(ctx, userID)
	if err != nil {
		return domain.SpendingProfile{}, err
	}
	return roundup.ComputeProfile(history, decimal.Zero), nil
}

// Balance returns the user's available savings balance.
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	history, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return AvailableBalance(history), nil
}

// AvailableBalance is the sum of completed savings minus every withdrawal
// that has not failed. Pending deposits are not yet spendable; pending
// withdrawals already reserve their amount.
func AvailableBalance(history []domain.Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range history {
		switch {
		case tx.Status == domain.StatusCompleted:
			balance = balance.Add(tx.AmountSaved)
		case tx.Status == domain.StatusPending && tx.Kind == domain.KindWithdrawal:
			balance = balance.Add(tx.AmountSaved)
		}
	}
	return balance
}

func (s *Service) countableHistory(ctx context.Context, userID string) ([]domain.Transaction, error) {
	all, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	history := make([]domain.Transaction, 0, len(all))
	for _, tx := range all {
		if tx.Countable() {
			history = append(history, tx)
		}
	}
	return history, nil
}

// settle moves tx to a terminal status, stores it and publishes the change.
func (s *Service) settle(ctx context.Context, tx domain.Transaction, to domain.Status) error {
	next, err := tx.Transition(to, s.now())
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, next); err != nil {
		s.metrics.RecordPersistenceError()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.publish(ctx, domain.EventTransactionUpdated, next)
	return nil
}

func (s *Service) publish(ctx context.Context, typ domain.EventType, tx domain.Transaction) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, domain.TransactionEvent{Type: typ, Transaction: tx, OccurredAt: s.now()})
	s.metrics.RecordPublish(err)
	if err != nil {
		s.log.Warn().Err(err).Str("transaction_id", tx.ID).Str("event", string(typ)).Msg("Failed to publish transaction event")
	}
}
